package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

const testARN = "arn:aws:dynamodb:eu-north-1:111122223333:table/docs/stream/2026-01-01T00:00:00.000"

// mockStreams emulates the streams API for one stream: a mutable list of
// shards whose iterators encode (shard, offset, generation). Bumping the
// generation invalidates every outstanding iterator, which is how tests
// simulate server-side iterator expiry.
type mockStreams struct {
	shards []*mockShard

	validGen          int
	describeCalls     int
	iteratorOpenCalls int
}

type mockShard struct {
	id      string
	parent  string
	records []streamtypes.Record
	closed  bool // true once the shard will never receive more records
	trimmed int  // records before this offset are past retention
}

func (m *mockStreams) shard(id string) *mockShard {
	for _, s := range m.shards {
		if s.id == id {
			return s
		}
	}
	return nil
}

// expireIterators invalidates all outstanding iterator handles.
func (m *mockStreams) expireIterators() {
	m.validGen++
}

func (m *mockStreams) DescribeStream(ctx context.Context, params *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	m.describeCalls++
	desc := &streamtypes.StreamDescription{StreamArn: params.StreamArn}
	for _, s := range m.shards {
		sd := streamtypes.Shard{ShardId: &s.id}
		if s.parent != "" {
			parent := s.parent
			sd.ParentShardId = &parent
		}
		if len(s.records) > s.trimmed {
			start := seqOf(s.records[s.trimmed])
			sd.SequenceNumberRange = &streamtypes.SequenceNumberRange{StartingSequenceNumber: &start}
		}
		desc.Shards = append(desc.Shards, sd)
	}
	return &dynamodbstreams.DescribeStreamOutput{StreamDescription: desc}, nil
}

func (m *mockStreams) GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	m.iteratorOpenCalls++
	s := m.shard(*params.ShardId)
	if s == nil {
		return nil, &streamtypes.ResourceNotFoundException{}
	}
	var offset int
	switch params.ShardIteratorType {
	case streamtypes.ShardIteratorTypeTrimHorizon:
		offset = s.trimmed
	case streamtypes.ShardIteratorTypeLatest:
		offset = len(s.records)
	case streamtypes.ShardIteratorTypeAtSequenceNumber, streamtypes.ShardIteratorTypeAfterSequenceNumber:
		offset = -1
		for i, r := range s.records {
			if seqOf(r) == *params.SequenceNumber {
				offset = i
				break
			}
		}
		if offset < 0 || offset < s.trimmed {
			return nil, &streamtypes.TrimmedDataAccessException{}
		}
		if params.ShardIteratorType == streamtypes.ShardIteratorTypeAfterSequenceNumber {
			offset++
		}
	}
	it := m.encodeIterator(s.id, offset)
	return &dynamodbstreams.GetShardIteratorOutput{ShardIterator: &it}, nil
}

func (m *mockStreams) GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	shardID, offset, gen, err := decodeIterator(*params.ShardIterator)
	if err != nil {
		return nil, err
	}
	if gen != m.validGen {
		return nil, &streamtypes.ExpiredIteratorException{}
	}
	s := m.shard(shardID)
	limit := len(s.records) - offset
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}
	out := &dynamodbstreams.GetRecordsOutput{
		Records: s.records[offset : offset+limit],
	}
	next := offset + limit
	if !(s.closed && next == len(s.records)) {
		it := m.encodeIterator(shardID, next)
		out.NextShardIterator = &it
	}
	return out, nil
}

func (m *mockStreams) encodeIterator(shardID string, offset int) string {
	return fmt.Sprintf("%s|%d|%d", shardID, offset, m.validGen)
}

func decodeIterator(it string) (shardID string, offset, gen int, err error) {
	parts := strings.Split(it, "|")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed test iterator %q", it)
	}
	offset, _ = strconv.Atoi(parts[1])
	gen, _ = strconv.Atoi(parts[2])
	return parts[0], offset, gen, nil
}

func seqOf(r streamtypes.Record) string {
	return *r.Dynamodb.SequenceNumber
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// rec builds a change record with the given sequence number and a creation
// time offset in seconds from the test epoch.
func rec(seq string, atSeconds int) streamtypes.Record {
	s := seq
	ts := testEpoch.Add(time.Duration(atSeconds) * time.Second)
	return streamtypes.Record{
		EventName: streamtypes.OperationTypeInsert,
		Dynamodb: &streamtypes.StreamRecord{
			SequenceNumber:              &s,
			ApproximateCreationDateTime: &ts,
			Keys: map[string]streamtypes.AttributeValue{
				"id": &streamtypes.AttributeValueMemberS{Value: "k" + seq},
			},
			NewImage: map[string]streamtypes.AttributeValue{
				"id": &streamtypes.AttributeValueMemberS{Value: "k" + seq},
			},
		},
	}
}

// recs builds a run of records whose creation times follow their position.
func recs(seqs ...string) []streamtypes.Record {
	out := make([]streamtypes.Record, len(seqs))
	for i, s := range seqs {
		out[i] = rec(s, i)
	}
	return out
}

// drain pulls records until n have been yielded or Next reports nothing
// ready twice in a row.
func drain(ctx context.Context, c *Coordinator, n int) ([]Record, error) {
	var out []Record
	idle := 0
	for len(out) < n && idle < 2 {
		r, err := c.Next(ctx)
		if err != nil {
			return out, err
		}
		if r == nil {
			idle++
			continue
		}
		idle = 0
		out = append(out, *r)
	}
	return out, nil
}

func seqs(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.SequenceNumber
	}
	return out
}
