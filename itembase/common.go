// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for itembase.
	Error = errs.Class("itembase")
	// ErrTableNotFound is returned when a logical table has no metadata.
	ErrTableNotFound = errs.Class("table not found")
	// ErrTableExists is returned when creating a table that already exists.
	ErrTableExists = errs.Class("table already exists")
	// ErrInvalidExpression is returned for malformed expressions and
	// unresolved placeholders.
	ErrInvalidExpression = errs.Class("invalid expression")
	// ErrInvalidItem is returned for items violating the data model.
	ErrInvalidItem = errs.Class("invalid item")
	// ErrItemTooLarge is returned when a serialized item exceeds the size cap.
	ErrItemTooLarge = errs.Class("item too large")
	// ErrConditionalCheckFailed is returned when a condition expression
	// evaluates false against the current row.
	ErrConditionalCheckFailed = errs.Class("conditional check failed")
	// ErrTransactionCancelled is returned when a transactional operation is
	// rolled back; the wrapped error carries per-item reasons.
	ErrTransactionCancelled = errs.Class("transaction cancelled")

	mon = monkit.Package()
)

const (
	// MaxItemSize is the cap on a serialized item in bytes.
	MaxItemSize = 400000
	// MaxKeyValueSize is the cap on a key attribute value in bytes.
	MaxKeyValueSize = 2048
	// BatchWriteLimit caps the requests in a single BatchWriteItem.
	BatchWriteLimit = 25
	// BatchGetLimit caps the keys in a single BatchGetItem.
	BatchGetLimit = 100
	// TransactLimit caps the items in a single transactional operation.
	TransactLimit = 25
)

// Cancellation reason codes for transactional operations.
const (
	ReasonNone                   = "None"
	ReasonConditionalCheckFailed = "ConditionalCheckFailed"
	ReasonResourceNotFound       = "ResourceNotFound"
	ReasonValidationError        = "ValidationError"
)

// CancellationReason describes why a single item of a transaction failed.
type CancellationReason struct {
	Code    string
	Message string
	Item    map[string]*dynamodb.AttributeValue
}

// TransactionCancelledError carries the per-item cancellation reasons of a
// rolled back transaction.
type TransactionCancelledError struct {
	Reasons []CancellationReason
}

// Error implements the error interface.
func (e *TransactionCancelledError) Error() string {
	codes := make([]string, 0, len(e.Reasons))
	for _, reason := range e.Reasons {
		codes = append(codes, reason.Code)
	}
	return fmt.Sprintf("transaction cancelled, reasons: [%s]", strings.Join(codes, ", "))
}

func cancelledWith(reasons []CancellationReason) error {
	return ErrTransactionCancelled.Wrap(&TransactionCancelledError{Reasons: reasons})
}
