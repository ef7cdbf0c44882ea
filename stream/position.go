package stream

import (
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// PositionKind selects which iterator-open call a position translates to.
// The values match the store's shard iterator types so tokens stay readable.
type PositionKind string

const (
	KindTrimHorizon   PositionKind = "TRIM_HORIZON"
	KindLatest        PositionKind = "LATEST"
	KindAtSequence    PositionKind = "AT_SEQUENCE_NUMBER"
	KindAfterSequence PositionKind = "AFTER_SEQUENCE_NUMBER"
)

// Position is a logical read position within one shard.
type Position struct {
	Kind           PositionKind `json:"kind"`
	SequenceNumber string       `json:"sequenceNumber,omitempty"`
}

// TrimHorizon positions at the oldest retrievable record.
func TrimHorizon() Position {
	return Position{Kind: KindTrimHorizon}
}

// Latest positions just past the most recent record.
func Latest() Position {
	return Position{Kind: KindLatest}
}

// AtSequence positions at the record with the given sequence number.
func AtSequence(seq string) Position {
	return Position{Kind: KindAtSequence, SequenceNumber: seq}
}

// AfterSequence positions just past the record with the given sequence number.
func AfterSequence(seq string) Position {
	return Position{Kind: KindAfterSequence, SequenceNumber: seq}
}

func (p Position) iteratorType() streamtypes.ShardIteratorType {
	return streamtypes.ShardIteratorType(p.Kind)
}

// sequenceArg returns the sequence number parameter for the iterator-open
// call, nil for symbolic positions.
func (p Position) sequenceArg() *string {
	if p.Kind == KindAtSequence || p.Kind == KindAfterSequence {
		seq := p.SequenceNumber
		return &seq
	}
	return nil
}
