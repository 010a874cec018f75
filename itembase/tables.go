// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"storj.io/pretender/shared/dbutil"
)

// Projection types for global secondary indexes.
const (
	ProjectionAll      = "ALL"
	ProjectionKeysOnly = "KEYS_ONLY"
	ProjectionInclude  = "INCLUDE"
)

// Stream view types.
const (
	ViewKeysOnly        = "KEYS_ONLY"
	ViewNewImage        = "NEW_IMAGE"
	ViewOldImage        = "OLD_IMAGE"
	ViewNewAndOldImages = "NEW_AND_OLD_IMAGES"
)

// GSI describes a global secondary index. Index definitions are immutable
// after table creation.
type GSI struct {
	IndexName        string   `json:"index_name"`
	HashKey          string   `json:"hash_key"`
	SortKey          string   `json:"sort_key,omitempty"`
	ProjectionType   string   `json:"projection_type"`
	NonKeyAttributes []string `json:"non_key_attributes,omitempty"`
}

// TableMetadata is one row of the table_metadata relation.
type TableMetadata struct {
	Name           string
	HashKey        string
	SortKey        string // empty when the table has no sort key
	Indexes        []GSI
	TTLEnabled     bool
	TTLAttribute   string
	StreamEnabled  bool
	StreamViewType string
	StreamARN      string
	StreamLabel    string
	CreateDate     time.Time
}

// HasSortKey reports whether the table schema includes a sort key.
func (meta *TableMetadata) HasSortKey() bool { return meta.SortKey != "" }

// Index returns the definition of the named index.
func (meta *TableMetadata) Index(name string) (GSI, bool) {
	for _, gsi := range meta.Indexes {
		if gsi.IndexName == name {
			return gsi, true
		}
	}
	return GSI{}, false
}

type metadataRow struct {
	Name                   string         `db:"name"`
	HashKey                string         `db:"hash_key"`
	SortKey                sql.NullString `db:"sort_key"`
	GlobalSecondaryIndexes []byte         `db:"global_secondary_indexes"`
	TTLEnabled             bool           `db:"ttl_enabled"`
	TTLAttributeName       sql.NullString `db:"ttl_attribute_name"`
	StreamEnabled          bool           `db:"stream_enabled"`
	StreamViewType         sql.NullString `db:"stream_view_type"`
	StreamARN              sql.NullString `db:"stream_arn"`
	StreamLabel            sql.NullString `db:"stream_label"`
	CreateDate             time.Time      `db:"create_date"`
}

func (row metadataRow) toMetadata() (TableMetadata, error) {
	var indexes []GSI
	if len(row.GlobalSecondaryIndexes) > 0 {
		if err := json.Unmarshal(row.GlobalSecondaryIndexes, &indexes); err != nil {
			return TableMetadata{}, Error.Wrap(err)
		}
	}
	return TableMetadata{
		Name:           row.Name,
		HashKey:        row.HashKey,
		SortKey:        row.SortKey.String,
		Indexes:        indexes,
		TTLEnabled:     row.TTLEnabled,
		TTLAttribute:   row.TTLAttributeName.String,
		StreamEnabled:  row.StreamEnabled,
		StreamViewType: row.StreamViewType.String,
		StreamARN:      row.StreamARN.String,
		StreamLabel:    row.StreamLabel.String,
		CreateDate:     row.CreateDate,
	}, nil
}

// GetTableMetadata fetches the metadata of a logical table.
func (db *DB) GetTableMetadata(ctx context.Context, name string) (_ TableMetadata, err error) {
	defer mon.Task()(&ctx)(&err)

	var row metadataRow
	err = db.db.GetContext(ctx, &row, db.db.Rebind(`
		SELECT name, hash_key, sort_key, global_secondary_indexes,
			ttl_enabled, ttl_attribute_name,
			stream_enabled, stream_view_type, stream_arn, stream_label,
			create_date
		FROM table_metadata
		WHERE name = ?`), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TableMetadata{}, ErrTableNotFound.New("%s", name)
		}
		return TableMetadata{}, Error.Wrap(err)
	}
	return row.toMetadata()
}

func (db *DB) listMetadata(ctx context.Context, where string) (_ []TableMetadata, err error) {
	defer mon.Task()(&ctx)(&err)

	var rows []metadataRow
	err = db.db.SelectContext(ctx, &rows, `
		SELECT name, hash_key, sort_key, global_secondary_indexes,
			ttl_enabled, ttl_attribute_name,
			stream_enabled, stream_view_type, stream_arn, stream_label,
			create_date
		FROM table_metadata `+where+` ORDER BY name`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	metas := make([]TableMetadata, 0, len(rows))
	for _, row := range rows {
		meta, err := row.toMetadata()
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// ListStreamTables returns the metadata of all tables with streams enabled.
func (db *DB) ListStreamTables(ctx context.Context) ([]TableMetadata, error) {
	return db.listMetadata(ctx, `WHERE stream_enabled`)
}

// ListTTLTables returns the metadata of all tables with expiration enabled.
func (db *DB) ListTTLTables(ctx context.Context) ([]TableMetadata, error) {
	return db.listMetadata(ctx, `WHERE ttl_enabled`)
}

func (db *DB) saveMetadata(ctx context.Context, meta TableMetadata, insert bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	indexes, err := json.Marshal(meta.Indexes)
	if err != nil {
		return Error.Wrap(err)
	}
	if meta.Indexes == nil {
		indexes = []byte(`[]`)
	}

	args := map[string]interface{}{
		"name":               meta.Name,
		"hash_key":           meta.HashKey,
		"sort_key":           nullable(meta.SortKey),
		"gsis":               string(indexes),
		"ttl_enabled":        meta.TTLEnabled,
		"ttl_attribute_name": nullable(meta.TTLAttribute),
		"stream_enabled":     meta.StreamEnabled,
		"stream_view_type":   nullable(meta.StreamViewType),
		"stream_arn":         nullable(meta.StreamARN),
		"stream_label":       nullable(meta.StreamLabel),
		"create_date":        meta.CreateDate,
	}

	var query string
	if insert {
		query = `
			INSERT INTO table_metadata (
				name, hash_key, sort_key, global_secondary_indexes,
				ttl_enabled, ttl_attribute_name,
				stream_enabled, stream_view_type, stream_arn, stream_label,
				create_date
			) VALUES (
				:name, :hash_key, :sort_key, ` + db.db.BindJSON(":gsis") + `,
				:ttl_enabled, :ttl_attribute_name,
				:stream_enabled, :stream_view_type, :stream_arn, :stream_label,
				:create_date
			)`
	} else {
		query = `
			UPDATE table_metadata SET
				ttl_enabled = :ttl_enabled,
				ttl_attribute_name = :ttl_attribute_name,
				stream_enabled = :stream_enabled,
				stream_view_type = :stream_view_type,
				stream_arn = :stream_arn,
				stream_label = :stream_label
			WHERE name = :name`
	}

	_, err = dbutil.NamedExec(ctx, db.db, query, args)
	return Error.Wrap(err)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CreateTable registers a logical table and creates its physical relations.
func (db *DB) CreateTable(ctx context.Context, req *dynamodb.CreateTableInput) (_ *dynamodb.CreateTableOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	name := aws.StringValue(req.TableName)
	if name == "" {
		return nil, ErrInvalidItem.New("table name missing")
	}

	_, err = db.GetTableMetadata(ctx, name)
	if err == nil {
		return nil, ErrTableExists.New("%s", name)
	}
	if !ErrTableNotFound.Has(err) {
		return nil, err
	}

	hashKey, sortKey, err := parseKeySchema(req.KeySchema)
	if err != nil {
		return nil, err
	}

	meta := TableMetadata{
		Name:       name,
		HashKey:    hashKey,
		SortKey:    sortKey,
		CreateDate: db.nowFn(),
	}

	for _, def := range req.GlobalSecondaryIndexes {
		indexHash, indexSort, err := parseKeySchema(def.KeySchema)
		if err != nil {
			return nil, err
		}
		gsi := GSI{
			IndexName:      aws.StringValue(def.IndexName),
			HashKey:        indexHash,
			SortKey:        indexSort,
			ProjectionType: ProjectionAll,
		}
		if gsi.IndexName == "" {
			return nil, ErrInvalidItem.New("index name missing")
		}
		if def.Projection != nil {
			if pt := aws.StringValue(def.Projection.ProjectionType); pt != "" {
				gsi.ProjectionType = pt
			}
			gsi.NonKeyAttributes = aws.StringValueSlice(def.Projection.NonKeyAttributes)
		}
		meta.Indexes = append(meta.Indexes, gsi)
	}

	if spec := req.StreamSpecification; spec != nil && aws.BoolValue(spec.StreamEnabled) {
		meta.StreamEnabled = true
		meta.StreamViewType = aws.StringValue(spec.StreamViewType)
		meta.StreamLabel = strconv.FormatInt(db.nowFn().UnixMilli(), 10)
		meta.StreamARN = streamARN(name, meta.StreamLabel)
	}

	if err := db.saveMetadata(ctx, meta, true); err != nil {
		return nil, err
	}
	if err := db.createItemRelation(ctx, itemRelationName(name), meta.HasSortKey()); err != nil {
		return nil, err
	}
	for _, gsi := range meta.Indexes {
		if err := db.createItemRelation(ctx, indexRelationName(name, gsi.IndexName), true); err != nil {
			return nil, err
		}
	}
	if meta.StreamEnabled {
		if err := db.createStreamRelation(ctx, name); err != nil {
			return nil, err
		}
	}

	return &dynamodb.CreateTableOutput{
		TableDescription: db.tableDescription(meta),
	}, nil
}

// DeleteTable removes a logical table, cascading to its index and stream
// relations.
func (db *DB) DeleteTable(ctx context.Context, req *dynamodb.DeleteTableInput) (_ *dynamodb.DeleteTableOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	if err := db.dropTableRelations(ctx, meta.Name); err != nil {
		return nil, err
	}
	_, err = db.db.ExecContext(ctx, db.db.Rebind(`DELETE FROM table_metadata WHERE name = ?`), meta.Name)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &dynamodb.DeleteTableOutput{
		TableDescription: db.tableDescription(meta),
	}, nil
}

// DescribeTable returns the description of a logical table.
func (db *DB) DescribeTable(ctx context.Context, req *dynamodb.DescribeTableInput) (_ *dynamodb.DescribeTableOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: db.tableDescription(meta)}, nil
}

// ListTables lists logical table names in order.
func (db *DB) ListTables(ctx context.Context, req *dynamodb.ListTablesInput) (_ *dynamodb.ListTablesOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	var names []string
	err = db.db.SelectContext(ctx, &names, `SELECT name FROM table_metadata ORDER BY name`)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	start := aws.StringValue(req.ExclusiveStartTableName)
	if start != "" {
		for len(names) > 0 && names[0] <= start {
			names = names[1:]
		}
	}

	out := &dynamodb.ListTablesOutput{}
	limit := int(aws.Int64Value(req.Limit))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
		out.LastEvaluatedTableName = aws.String(names[len(names)-1])
	}
	out.TableNames = aws.StringSlice(names)
	return out, nil
}

// UpdateTimeToLive enables or disables expiration on a table.
func (db *DB) UpdateTimeToLive(ctx context.Context, req *dynamodb.UpdateTimeToLiveInput) (_ *dynamodb.UpdateTimeToLiveOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	spec := req.TimeToLiveSpecification
	if spec == nil || spec.Enabled == nil || aws.StringValue(spec.AttributeName) == "" {
		return nil, ErrInvalidItem.New("time to live specification missing")
	}

	meta.TTLEnabled = aws.BoolValue(spec.Enabled)
	if meta.TTLEnabled {
		meta.TTLAttribute = aws.StringValue(spec.AttributeName)
	} else {
		meta.TTLAttribute = ""
	}
	if err := db.saveMetadata(ctx, meta, false); err != nil {
		return nil, err
	}
	return &dynamodb.UpdateTimeToLiveOutput{
		TimeToLiveSpecification: spec,
	}, nil
}

// DescribeTimeToLive reports the expiration status of a table.
func (db *DB) DescribeTimeToLive(ctx context.Context, req *dynamodb.DescribeTimeToLiveInput) (_ *dynamodb.DescribeTimeToLiveOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	desc := &dynamodb.TimeToLiveDescription{
		TimeToLiveStatus: aws.String(dynamodb.TimeToLiveStatusDisabled),
	}
	if meta.TTLEnabled {
		desc.TimeToLiveStatus = aws.String(dynamodb.TimeToLiveStatusEnabled)
		desc.AttributeName = aws.String(meta.TTLAttribute)
	}
	return &dynamodb.DescribeTimeToLiveOutput{TimeToLiveDescription: desc}, nil
}

// UpdateTable enables or disables the change stream of a table. Other
// mutations (index changes, throughput) are not supported.
func (db *DB) UpdateTable(ctx context.Context, req *dynamodb.UpdateTableInput) (_ *dynamodb.UpdateTableOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	spec := req.StreamSpecification
	if spec == nil || spec.StreamEnabled == nil {
		return nil, ErrInvalidItem.New("stream specification missing")
	}

	if aws.BoolValue(spec.StreamEnabled) {
		meta.StreamEnabled = true
		meta.StreamViewType = aws.StringValue(spec.StreamViewType)
		meta.StreamLabel = strconv.FormatInt(db.nowFn().UnixMilli(), 10)
		meta.StreamARN = streamARN(meta.Name, meta.StreamLabel)
		if err := db.createStreamRelation(ctx, meta.Name); err != nil {
			return nil, err
		}
	} else {
		meta.StreamEnabled = false
		meta.StreamViewType = ""
		meta.StreamARN = ""
		meta.StreamLabel = ""
	}

	if err := db.saveMetadata(ctx, meta, false); err != nil {
		return nil, err
	}
	return &dynamodb.UpdateTableOutput{
		TableDescription: db.tableDescription(meta),
	}, nil
}

func (db *DB) tableDescription(meta TableMetadata) *dynamodb.TableDescription {
	desc := &dynamodb.TableDescription{
		TableName:        aws.String(meta.Name),
		TableStatus:      aws.String(dynamodb.TableStatusActive),
		CreationDateTime: aws.Time(meta.CreateDate),
		KeySchema:        keySchemaOf(meta.HashKey, meta.SortKey),
	}
	for _, gsi := range meta.Indexes {
		indexDesc := &dynamodb.GlobalSecondaryIndexDescription{
			IndexName:   aws.String(gsi.IndexName),
			IndexStatus: aws.String(dynamodb.IndexStatusActive),
			KeySchema:   keySchemaOf(gsi.HashKey, gsi.SortKey),
			Projection: &dynamodb.Projection{
				ProjectionType: aws.String(gsi.ProjectionType),
			},
		}
		if len(gsi.NonKeyAttributes) > 0 {
			indexDesc.Projection.NonKeyAttributes = aws.StringSlice(gsi.NonKeyAttributes)
		}
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, indexDesc)
	}
	if meta.StreamEnabled {
		desc.LatestStreamArn = aws.String(meta.StreamARN)
		desc.LatestStreamLabel = aws.String(meta.StreamLabel)
		desc.StreamSpecification = &dynamodb.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: aws.String(meta.StreamViewType),
		}
	}
	return desc
}

func keySchemaOf(hashKey, sortKey string) []*dynamodb.KeySchemaElement {
	schema := []*dynamodb.KeySchemaElement{{
		AttributeName: aws.String(hashKey),
		KeyType:       aws.String(dynamodb.KeyTypeHash),
	}}
	if sortKey != "" {
		schema = append(schema, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(sortKey),
			KeyType:       aws.String(dynamodb.KeyTypeRange),
		})
	}
	return schema
}

func parseKeySchema(schema []*dynamodb.KeySchemaElement) (hashKey, sortKey string, err error) {
	for _, element := range schema {
		switch aws.StringValue(element.KeyType) {
		case dynamodb.KeyTypeHash:
			hashKey = aws.StringValue(element.AttributeName)
		case dynamodb.KeyTypeRange:
			sortKey = aws.StringValue(element.AttributeName)
		default:
			return "", "", ErrInvalidItem.New("unknown key type %q", aws.StringValue(element.KeyType))
		}
	}
	if hashKey == "" {
		return "", "", ErrInvalidItem.New("hash key missing from key schema")
	}
	return hashKey, sortKey, nil
}

func streamARN(table, label string) string {
	return fmt.Sprintf("arn:aws:dynamodb:us-east-1:000000000000:table/%s/stream/%s", table, label)
}

// TableNameFromStreamARN extracts the table name, the third-from-last
// /-delimited segment of the ARN.
func TableNameFromStreamARN(arn string) (string, error) {
	segments := strings.Split(arn, "/")
	if len(segments) < 3 {
		return "", ErrInvalidItem.New("malformed stream arn %q", arn)
	}
	return segments[len(segments)-3], nil
}
