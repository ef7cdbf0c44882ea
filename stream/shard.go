package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"

	"github.com/okvist/vogels/ddbsdk"
)

// shard is one segment of the change log. It exclusively owns its iterator
// handle: the coordinator never holds two live iterators for the same shard.
type shard struct {
	id       string
	parentID string

	// position is where the shard opens its first iterator. After records
	// have been fetched, reopens happen after the last fetched sequence
	// instead, so already-consumed records are not re-delivered.
	position Position

	iterator      string // "" means not opened, or exhausted when closed
	lastFetched   string // newest sequence pushed into the buffer
	lastDelivered string // newest sequence handed to the caller
	closed        bool   // upstream reported no further iterator

	discovery  int       // tie-break order for equal timestamps
	lastAccess time.Time // last successful iterator use, drives heartbeats

	buf *recordBuffer
}

// safePosition is where a replacement iterator should start: after the last
// successfully fetched record, or at the originally requested position when
// nothing has been fetched yet. Records still sitting in the buffer are
// delivered from memory either way.
func (s *shard) safePosition() Position {
	if s.lastFetched != "" {
		return AfterSequence(s.lastFetched)
	}
	return s.position
}

// open issues the iterator-open call for the shard's safe position.
func (s *shard) open(ctx context.Context, c *Coordinator) error {
	pos := s.safePosition()
	out, err := ddbsdk.Do(ctx, c.caller, "GetShardIterator", func(ctx context.Context) (*dynamodbstreams.GetShardIteratorOutput, error) {
		return c.api.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
			StreamArn:         &c.streamARN,
			ShardId:           &s.id,
			ShardIteratorType: pos.iteratorType(),
			SequenceNumber:    pos.sequenceArg(),
		})
	})
	if err != nil {
		if errors.Is(err, ddbsdk.ErrTrimmed) {
			return fmt.Errorf("%w: shard %s at %s: %w", ErrPositionLost, s.id, pos.Kind, err)
		}
		return fmt.Errorf("open shard %s: %w", s.id, err)
	}
	if out.ShardIterator == nil {
		s.closed = true
		s.iterator = ""
		return nil
	}
	s.iterator = *out.ShardIterator
	s.lastAccess = c.now()
	return nil
}

// poll fetches the next batch into the buffer, advancing the iterator
// handle. An expired iterator is recovered transparently by reopening at the
// safe position and retrying once; if the safe position itself has been
// trimmed the error is ErrPositionLost and the caller must reposition.
func (s *shard) poll(ctx context.Context, c *Coordinator) error {
	if s.closed {
		return nil
	}
	limit := s.buf.free()
	if limit == 0 {
		return nil
	}
	if limit > c.opts.pollLimit {
		limit = c.opts.pollLimit
	}
	if s.iterator == "" {
		if err := s.open(ctx, c); err != nil {
			return err
		}
		if s.closed {
			return nil
		}
	}

	out, err := s.getRecords(ctx, c, limit)
	if errors.Is(err, ddbsdk.ErrExpiredIterator) {
		if err := s.open(ctx, c); err != nil {
			return err
		}
		out, err = s.getRecords(ctx, c, limit)
	}
	if err != nil {
		if errors.Is(err, ddbsdk.ErrTrimmed) {
			return fmt.Errorf("%w: shard %s: %w", ErrPositionLost, s.id, err)
		}
		return fmt.Errorf("poll shard %s: %w", s.id, err)
	}

	for _, raw := range out.Records {
		r := recordFromSDK(s.id, raw)
		s.buf.push(r)
		s.lastFetched = r.SequenceNumber
	}
	if out.NextShardIterator == nil {
		// No parent iterator further: drained, awaiting children.
		s.closed = true
		s.iterator = ""
	} else {
		s.iterator = *out.NextShardIterator
	}
	s.lastAccess = c.now()
	return nil
}

func (s *shard) getRecords(ctx context.Context, c *Coordinator, limit int) (*dynamodbstreams.GetRecordsOutput, error) {
	return ddbsdk.Do(ctx, c.caller, "GetRecords", func(ctx context.Context) (*dynamodbstreams.GetRecordsOutput, error) {
		return c.api.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: &s.iterator,
			Limit:         aws.Int32(int32(limit)),
		})
	})
}

// refresh keeps an idle server-side handle alive. With buffer room to spare
// this is a plain poll, which advances the handle in place and never moves
// the read position backwards or forwards past unseen records. Only when the
// buffer is full does it fall back to reopening, which is exact then: a full
// buffer implies records were fetched, so the safe position is the sequence
// right after them.
func (s *shard) refresh(ctx context.Context, c *Coordinator) error {
	if s.buf.free() > 0 {
		return s.poll(ctx, c)
	}
	return s.open(ctx, c)
}

// drained reports whether the shard has nothing left to contribute and its
// children may take over.
func (s *shard) drained() bool {
	return s.closed && s.buf.len() == 0
}
