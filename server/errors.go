// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package server

import (
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/zeebo/errs"

	"storj.io/pretender/itembase"
	"storj.io/pretender/streams"
)

// errorResponse is the wire shape of a failed call.
type errorResponse struct {
	Type                string                         `locationName:"__type"`
	Message             string                         `locationName:"message"`
	CancellationReasons []*dynamodb.CancellationReason `locationName:"CancellationReasons"`
}

const errorTypePrefix = "com.amazonaws.dynamodb.v20120810#"

// toErrorResponse maps an engine error onto the wire error code and HTTP
// status the SDKs expect.
func toErrorResponse(err error) (response errorResponse, status int) {
	response.Message = err.Error()

	switch {
	case itembase.ErrTableNotFound.Has(err):
		return withType(response, "ResourceNotFoundException"), http.StatusBadRequest

	case itembase.ErrTableExists.Has(err):
		return withType(response, "ResourceInUseException"), http.StatusBadRequest

	case itembase.ErrConditionalCheckFailed.Has(err):
		return withType(response, "ConditionalCheckFailedException"), http.StatusBadRequest

	case itembase.ErrTransactionCancelled.Has(err):
		response = withType(response, "TransactionCanceledException")
		var cancelled *itembase.TransactionCancelledError
		if errors.As(err, &cancelled) {
			for _, reason := range cancelled.Reasons {
				converted := &dynamodb.CancellationReason{
					Code: aws.String(reason.Code),
				}
				if reason.Code != itembase.ReasonNone {
					converted.Message = aws.String(reason.Message)
					converted.Item = reason.Item
				}
				response.CancellationReasons = append(response.CancellationReasons, converted)
			}
		}
		return response, http.StatusBadRequest

	case itembase.ErrInvalidExpression.Has(err),
		itembase.ErrInvalidItem.Has(err),
		itembase.ErrItemTooLarge.Has(err),
		streams.ErrInvalidIterator.Has(err),
		ErrBadRequest.Has(err):
		return withType(response, "ValidationException"), http.StatusBadRequest

	default:
		return withType(response, "InternalFailure"), http.StatusInternalServerError
	}
}

func withType(response errorResponse, code string) errorResponse {
	response.Type = errorTypePrefix + code
	return response
}

// ErrBadRequest is returned for unknown operations and undecodable bodies.
var ErrBadRequest = errs.Class("bad request")
