// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package streams serves the change-data-capture API: listing streams,
// describing shards and reading change records through shard iterators.
package streams

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/pretender/itembase"
	"storj.io/pretender/itembase/attr"
)

var (
	// Error is the default error class for the streams service.
	Error = errs.Class("streams")
	// ErrInvalidIterator is returned for malformed or incomplete iterator
	// tokens.
	ErrInvalidIterator = errs.Class("invalid shard iterator")

	mon = monkit.Package()
)

// Every stream exposes exactly one shard; the sequence column is a single
// monotonic counter, so there is nothing to split.
const shardID = "shard-00000"

// GetRecordsDefaultLimit caps a GetRecords response when the caller does
// not set a limit.
const GetRecordsDefaultLimit = 1000

// Service implements the streams API on top of the item engine.
type Service struct {
	log *zap.Logger
	db  *itembase.DB
}

// NewService constructs a streams service.
func NewService(log *zap.Logger, db *itembase.DB) *Service {
	return &Service{log: log, db: db}
}

// ListStreams lists the streams of all tables, or of a single table when
// TableName is set.
func (service *Service) ListStreams(ctx context.Context, req *dynamodbstreams.ListStreamsInput) (_ *dynamodbstreams.ListStreamsOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	metas, err := service.db.ListStreamTables(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	filter := aws.StringValue(req.TableName)
	out := &dynamodbstreams.ListStreamsOutput{}
	for _, meta := range metas {
		if filter != "" && meta.Name != filter {
			continue
		}
		out.Streams = append(out.Streams, &dynamodbstreams.Stream{
			StreamArn:   aws.String(meta.StreamARN),
			StreamLabel: aws.String(meta.StreamLabel),
			TableName:   aws.String(meta.Name),
		})
	}
	return out, nil
}

// DescribeStream describes the single shard of a stream, including the
// sequence number range currently retained.
func (service *Service) DescribeStream(ctx context.Context, req *dynamodbstreams.DescribeStreamInput) (_ *dynamodbstreams.DescribeStreamOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := service.tableForARN(ctx, aws.StringValue(req.StreamArn))
	if err != nil {
		return nil, err
	}

	min, max, err := service.db.StreamSequenceRange(ctx, meta.Name)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	shard := &dynamodbstreams.Shard{
		ShardId:             aws.String(shardID),
		SequenceNumberRange: &dynamodbstreams.SequenceNumberRange{},
	}
	if max > 0 {
		shard.SequenceNumberRange.StartingSequenceNumber = aws.String(strconv.FormatInt(min, 10))
		shard.SequenceNumberRange.EndingSequenceNumber = aws.String(strconv.FormatInt(max, 10))
	}

	return &dynamodbstreams.DescribeStreamOutput{
		StreamDescription: &dynamodbstreams.StreamDescription{
			StreamArn:      aws.String(meta.StreamARN),
			StreamLabel:    aws.String(meta.StreamLabel),
			StreamStatus:   aws.String(dynamodbstreams.StreamStatusEnabled),
			StreamViewType: aws.String(meta.StreamViewType),
			TableName:      aws.String(meta.Name),
			KeySchema:      keySchemaOf(meta),
			Shards:         []*dynamodbstreams.Shard{shard},
		},
	}, nil
}

// GetShardIterator resolves an iterator type into a concrete stream
// position encoded as an opaque token.
func (service *Service) GetShardIterator(ctx context.Context, req *dynamodbstreams.GetShardIteratorInput) (_ *dynamodbstreams.GetShardIteratorOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := service.tableForARN(ctx, aws.StringValue(req.StreamArn))
	if err != nil {
		return nil, err
	}
	if aws.StringValue(req.ShardId) != shardID {
		return nil, ErrInvalidIterator.New("unknown shard %q", aws.StringValue(req.ShardId))
	}

	it := shardIterator{Table: meta.Name, ShardID: shardID}
	switch aws.StringValue(req.ShardIteratorType) {
	case dynamodbstreams.ShardIteratorTypeTrimHorizon:
		it.Sequence = 0

	case dynamodbstreams.ShardIteratorTypeLatest:
		_, max, err := service.db.StreamSequenceRange(ctx, meta.Name)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		it.Sequence = max

	case dynamodbstreams.ShardIteratorTypeAtSequenceNumber:
		sequence, err := parseSequence(req.SequenceNumber)
		if err != nil {
			return nil, err
		}
		it.Sequence = sequence - 1

	case dynamodbstreams.ShardIteratorTypeAfterSequenceNumber:
		sequence, err := parseSequence(req.SequenceNumber)
		if err != nil {
			return nil, err
		}
		it.Sequence = sequence

	default:
		return nil, ErrInvalidIterator.New("unknown iterator type %q", aws.StringValue(req.ShardIteratorType))
	}

	return &dynamodbstreams.GetShardIteratorOutput{
		ShardIterator: aws.String(it.encode()),
	}, nil
}

// GetRecords reads change records after the iterator's position, in
// sequence order. NextShardIterator is nil only when zero records came
// back, signaling the caller to obtain a fresh iterator.
func (service *Service) GetRecords(ctx context.Context, req *dynamodbstreams.GetRecordsInput) (_ *dynamodbstreams.GetRecordsOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	it, err := decodeIterator(aws.StringValue(req.ShardIterator))
	if err != nil {
		return nil, err
	}
	meta, err := service.db.GetTableMetadata(ctx, it.Table)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	limit := int(aws.Int64Value(req.Limit))
	if limit <= 0 {
		limit = GetRecordsDefaultLimit
	}

	records, err := service.db.StreamRecordsAfter(ctx, meta.Name, it.Sequence, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	out := &dynamodbstreams.GetRecordsOutput{}
	for _, record := range records {
		converted, err := convertRecord(meta, record)
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, converted)
	}

	if len(records) > 0 {
		next := shardIterator{
			Table:    it.Table,
			ShardID:  it.ShardID,
			Sequence: records[len(records)-1].SequenceNumber,
		}
		out.NextShardIterator = aws.String(next.encode())
	}
	return out, nil
}

func parseSequence(s *string) (int64, error) {
	sequence, err := strconv.ParseInt(aws.StringValue(s), 10, 64)
	if err != nil {
		return 0, ErrInvalidIterator.New("malformed sequence number %q", aws.StringValue(s))
	}
	return sequence, nil
}

func (service *Service) tableForARN(ctx context.Context, arn string) (itembase.TableMetadata, error) {
	tableName, err := itembase.TableNameFromStreamARN(arn)
	if err != nil {
		return itembase.TableMetadata{}, Error.Wrap(err)
	}
	meta, err := service.db.GetTableMetadata(ctx, tableName)
	if err != nil {
		return itembase.TableMetadata{}, Error.Wrap(err)
	}
	if !meta.StreamEnabled || meta.StreamARN != arn {
		return itembase.TableMetadata{}, itembase.ErrTableNotFound.New("stream %s", arn)
	}
	return meta, nil
}

func convertRecord(meta itembase.TableMetadata, record itembase.StreamRecord) (*dynamodbstreams.Record, error) {
	streamRecord := &dynamodbstreams.StreamRecord{
		SequenceNumber:              aws.String(strconv.FormatInt(record.SequenceNumber, 10)),
		ApproximateCreationDateTime: aws.Time(time.UnixMilli(record.ApproximateTime)),
		SizeBytes:                   aws.Int64(record.SizeBytes),
		StreamViewType:              aws.String(meta.StreamViewType),
	}

	keys, err := attr.FromJSON(string(record.KeysJSON))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	streamRecord.Keys = keys

	if len(record.OldImageJSON) > 0 {
		image, err := attr.FromJSON(string(record.OldImageJSON))
		if err != nil {
			return nil, Error.Wrap(err)
		}
		streamRecord.OldImage = image
	}
	if len(record.NewImageJSON) > 0 {
		image, err := attr.FromJSON(string(record.NewImageJSON))
		if err != nil {
			return nil, Error.Wrap(err)
		}
		streamRecord.NewImage = image
	}

	return &dynamodbstreams.Record{
		EventID:      aws.String(record.EventID),
		EventName:    aws.String(record.EventType),
		EventSource:  aws.String("aws:dynamodb"),
		EventVersion: aws.String("1.1"),
		AwsRegion:    aws.String("us-east-1"),
		Dynamodb:     streamRecord,
	}, nil
}

func keySchemaOf(meta itembase.TableMetadata) []*dynamodb.KeySchemaElement {
	schema := []*dynamodb.KeySchemaElement{{
		AttributeName: aws.String(meta.HashKey),
		KeyType:       aws.String(dynamodb.KeyTypeHash),
	}}
	if meta.HasSortKey() {
		schema = append(schema, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(meta.SortKey),
			KeyType:       aws.String(dynamodb.KeyTypeRange),
		})
	}
	return schema
}
