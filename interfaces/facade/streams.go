package facade

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/pretender-db/pretender/domain/attrvalue"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
	"github.com/pretender-db/pretender/infrastructure/streamcodec"
)

// ListStreams lists every stream-enabled table's stream, optionally filtered
// to one table.
func (f *Facade) ListStreams(ctx context.Context, in *dynamodbstreams.ListStreamsInput) (*dynamodbstreams.ListStreamsOutput, error) {
	descriptors, err := f.streams.ListStreams(ctx, derefString(in.TableName))
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	out := &dynamodbstreams.ListStreamsOutput{}
	for _, d := range descriptors {
		name := d.TableName
		streamArn := "local:stream/" + name
		out.Streams = append(out.Streams, streamtypes.Stream{
			TableName:  &name,
			StreamArn:  &streamArn,
			StreamLabel: &streamArn,
		})
	}
	return out, nil
}

// DescribeStream reports a stream's shard layout and view type.
func (f *Facade) DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput) (*dynamodbstreams.DescribeStreamOutput, error) {
	streamArn := derefString(in.StreamArn)
	tableName := tableNameFromStreamArn(streamArn)

	desc, err := f.streams.DescribeStream(ctx, tableName)
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	var shards []streamtypes.Shard
	for _, s := range desc.Shards {
		shardID := s.ShardID
		start := strconv.FormatInt(s.StartingSequenceNumber, 10)
		shards = append(shards, streamtypes.Shard{
			ShardId: &shardID,
			SequenceNumberRange: &streamtypes.SequenceNumberRange{
				StartingSequenceNumber: &start,
			},
		})
	}

	return &dynamodbstreams.DescribeStreamOutput{
		StreamDescription: &streamtypes.StreamDescription{
			StreamArn:      &streamArn,
			TableName:      &desc.TableName,
			StreamViewType: streamtypes.StreamViewType(fromStreamViewType(desc.StreamViewType)),
			StreamStatus:   streamtypes.StreamStatusEnabled,
			Shards:         shards,
		},
	}, nil
}

// GetShardIterator issues an iterator positioned per ShardIteratorType.
func (f *Facade) GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput) (*dynamodbstreams.GetShardIteratorOutput, error) {
	tableName := tableNameFromStreamArn(derefString(in.StreamArn))

	var seqNum int64
	if in.SequenceNumber != nil {
		parsed, err := strconv.ParseInt(*in.SequenceNumber, 10, 64)
		if err != nil {
			return nil, toErrorOrNil(err)
		}
		seqNum = parsed
	}

	iterator, err := f.streams.GetShardIterator(ctx, tableName, derefString(in.ShardId), streamcodec.IteratorType(in.ShardIteratorType), seqNum)
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodbstreams.GetShardIteratorOutput{ShardIterator: &iterator}, nil
}

// GetRecords fetches the records at and after an iterator's position.
func (f *Facade) GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput) (*dynamodbstreams.GetRecordsOutput, error) {
	limit := 1000
	if in.Limit != nil {
		limit = int(*in.Limit)
	}

	result, err := f.streams.GetRecords(ctx, derefString(in.ShardIterator), limit)
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	out := &dynamodbstreams.GetRecordsOutput{NextShardIterator: &result.NextShardIterator}
	for _, row := range result.Records {
		rec, err := toStreamRecord(row)
		if err != nil {
			return nil, toErrorOrNil(err)
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func toStreamRecord(row sqlstore.StreamRow) (streamtypes.Record, error) {
	keys, err := attrvalue.FromJSON(row.KeysJSON)
	if err != nil {
		return streamtypes.Record{}, err
	}

	var oldImage, newImage attrvalue.Item
	if row.OldImageJSON != "" {
		oldImage, err = attrvalue.FromJSON(row.OldImageJSON)
		if err != nil {
			return streamtypes.Record{}, err
		}
	}
	if row.NewImageJSON != "" {
		newImage, err = attrvalue.FromJSON(row.NewImageJSON)
		if err != nil {
			return streamtypes.Record{}, err
		}
	}

	seq := strconv.FormatInt(row.SequenceNumber, 10)
	sizeBytes := int64(row.SizeBytes)
	approxTime := row.EventTimestamp

	return streamtypes.Record{
		EventID:      &row.EventID,
		EventName:    streamtypes.OperationType(row.EventType),
		EventSource:  strPtr("pretender:stream"),
		EventVersion: strPtr("1.1"),
		Dynamodb: &streamtypes.StreamRecord{
			ApproximateCreationDateTime: &approxTime,
			Keys:                        toStreamItem(keys),
			OldImage:                    toStreamItem(oldImage),
			NewImage:                    toStreamItem(newImage),
			SequenceNumber:              &seq,
			SizeBytes:                   &sizeBytes,
		},
	}, nil
}

func strPtr(s string) *string { return &s }

func tableNameFromStreamArn(streamArn string) string {
	const prefix = "local:stream/"
	if len(streamArn) > len(prefix) && streamArn[:len(prefix)] == prefix {
		return streamArn[len(prefix):]
	}
	return streamArn
}
