package stream

import (
	"time"

	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// EventType is the kind of mutation a record describes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventModify EventType = "MODIFY"
	EventRemove EventType = "REMOVE"
)

// Record is one logical change entry from the stream.
//
// Within one shard, sequence numbers are monotonically increasing in
// delivery order. Across shards the coordinator approximates a total order
// by (creation time, sequence number, shard discovery order); concurrent
// writers to different partitions may be interleaved inexactly.
type Record struct {
	ShardID        string
	SequenceNumber string
	EventType      EventType

	Keys     map[string]streamtypes.AttributeValue
	OldImage map[string]streamtypes.AttributeValue
	NewImage map[string]streamtypes.AttributeValue

	ApproximateCreationTime time.Time
}

func recordFromSDK(shardID string, r streamtypes.Record) Record {
	out := Record{
		ShardID:   shardID,
		EventType: EventType(r.EventName),
	}
	if sr := r.Dynamodb; sr != nil {
		if sr.SequenceNumber != nil {
			out.SequenceNumber = *sr.SequenceNumber
		}
		if sr.ApproximateCreationDateTime != nil {
			out.ApproximateCreationTime = *sr.ApproximateCreationDateTime
		}
		out.Keys = sr.Keys
		out.OldImage = sr.OldImage
		out.NewImage = sr.NewImage
	}
	return out
}

// sequenceLess compares two sequence numbers. They are decimal digit
// strings of varying length, so a plain lexical compare is wrong; compare
// by length first, then lexically.
func sequenceLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
