// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jmoiron/sqlx"

	"storj.io/common/uuid"
	"storj.io/pretender/itembase/attr"
	"storj.io/pretender/shared/dbutil"
)

// Stream event types.
const (
	eventInsert = "INSERT"
	eventModify = "MODIFY"
	eventRemove = "REMOVE"
)

// captureStreamEvent appends a change record for a write, inside the same
// transaction as the write itself. Which images are stored follows the
// stream's view type. No-op when the table has no stream.
func (db *DB) captureStreamEvent(ctx context.Context, ex sqlx.ExtContext, meta TableMetadata, eventType string, oldItem, newItem map[string]*dynamodb.AttributeValue, key rowKey) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !meta.StreamEnabled {
		return nil
	}

	source := newItem
	if source == nil {
		source = oldItem
	}
	keysJSON, err := attr.ToJSON(keyAttributesOf(meta, source))
	if err != nil {
		return Error.Wrap(err)
	}

	storeOld := meta.StreamViewType == ViewOldImage || meta.StreamViewType == ViewNewAndOldImages
	storeNew := meta.StreamViewType == ViewNewImage || meta.StreamViewType == ViewNewAndOldImages

	size := len(keysJSON)
	var oldJSON, newJSON interface{}
	if storeOld && oldItem != nil {
		encoded, err := attr.ToJSON(oldItem)
		if err != nil {
			return Error.Wrap(err)
		}
		oldJSON = encoded
		size += len(encoded)
	}
	if storeNew && newItem != nil {
		encoded, err := attr.ToJSON(newItem)
		if err != nil {
			return Error.Wrap(err)
		}
		newJSON = encoded
		size += len(encoded)
	}

	eventID, err := uuid.New()
	if err != nil {
		return Error.Wrap(err)
	}

	now := db.nowFn()
	_, err = dbutil.NamedExec(ctx, ex, `
		INSERT INTO `+dbutil.QuoteIdent(streamRelationName(meta.Name))+`
			(event_id, event_type, approximate_creation_time,
			hash_key_value, sort_key_value, keys_json,
			old_image_json, new_image_json, size_bytes, create_date)
		VALUES
			(:event_id, :event_type, :creation_time,
			:hash, :sort, `+db.db.BindJSON(":keys")+`,
			`+db.db.BindJSON(":old_image")+`, `+db.db.BindJSON(":new_image")+`, :size, :now)`,
		map[string]interface{}{
			"event_id":      eventID.String(),
			"event_type":    eventType,
			"creation_time": now.UnixMilli(),
			"hash":          key.Hash,
			"sort":          sortArg(key.Sort),
			"keys":          keysJSON,
			"old_image":     oldJSON,
			"new_image":     newJSON,
			"size":          size,
			"now":           now,
		})
	return Error.Wrap(err)
}
