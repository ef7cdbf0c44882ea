// Package stream exposes a DynamoDB change stream as one merged,
// approximately time-ordered sequence of records.
//
// The stream is split into shards that expire, split and merge. The
// Coordinator owns the resulting forest: it polls each active shard into a
// bounded per-shard buffer, yields the globally oldest buffered record one
// at a time, retires shards as they drain and promotes their children, and
// serializes its whole state into an opaque token for pause/resume.
//
// Everything is caller-driven: no goroutines, no background polling. Next
// returns nil when nothing is ready, which is "try again later", never EOF.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/okvist/vogels/ddbsdk"
)

type Coordinator struct {
	streamARN string
	api       ddbsdk.AWSStreamsClientV2
	caller    *ddbsdk.Caller
	logger    *slog.Logger
	opts      coordinatorOpts

	shards     map[string]*shard
	discovered int // next discovery index
	positioned bool

	now func() time.Time
}

type coordinatorOpts struct {
	pollLimit    int
	bufferLimit  int
	pollInterval time.Duration
	heartbeatAge time.Duration
}

type Option func(*coordinatorOpts)

// WithPollLimit caps how many records one GetRecords call may return.
func WithPollLimit(n int) Option {
	return func(o *coordinatorOpts) { o.pollLimit = n }
}

// WithBufferLimit caps the per-shard buffer of fetched-but-unyielded records.
func WithBufferLimit(n int) Option {
	return func(o *coordinatorOpts) { o.bufferLimit = n }
}

// WithPollInterval sets the minimum time between polls of the same shard,
// so a hot Next loop does not hammer an empty shard.
func WithPollInterval(d time.Duration) Option {
	return func(o *coordinatorOpts) { o.pollInterval = d }
}

// WithHeartbeatAge sets how long an iterator may sit unused before Heartbeat
// refreshes it. Server-side iterators are only valid for minutes.
func WithHeartbeatAge(d time.Duration) Option {
	return func(o *coordinatorOpts) { o.heartbeatAge = d }
}

func New(streamARN string, api ddbsdk.AWSStreamsClientV2, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		streamARN: streamARN,
		api:       api,
		caller:    ddbsdk.NewCaller(),
		logger:    logger,
		shards:    make(map[string]*shard),
		now:       time.Now,
		opts: coordinatorOpts{
			pollLimit:    1000,
			bufferLimit:  1000,
			heartbeatAge: 4 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// MoveTo discards the current forest and repositions the whole stream: root
// shards open at the given position, descendants at their own trim horizon
// (the split guarantees a child holds nothing from before its parent).
func (c *Coordinator) MoveTo(ctx context.Context, pos Position) error {
	described, err := c.describe(ctx)
	if err != nil {
		return err
	}
	byID := shardIndex(described)
	c.shards = make(map[string]*shard)
	c.discovered = 0
	for _, sd := range described {
		p := TrimHorizon()
		if _, hasParent := byID[orEmpty(sd.ParentShardId)]; !hasParent {
			p = pos
		}
		c.add(*sd.ShardId, orEmpty(sd.ParentShardId), p)
	}
	c.positioned = true
	return nil
}

// Next returns the single oldest record available across all active shards,
// or nil if nothing is currently buffered or fetchable. nil is not EOF: the
// stream is unbounded and the caller should poll again later, ideally with
// its own backoff.
func (c *Coordinator) Next(ctx context.Context) (*Record, error) {
	if !c.positioned {
		if err := c.MoveTo(ctx, TrimHorizon()); err != nil {
			return nil, err
		}
	}
	if err := c.retireDrained(ctx); err != nil {
		return nil, err
	}
	for _, s := range c.active() {
		if s.buf.len() > 0 || s.closed {
			continue
		}
		if c.opts.pollInterval > 0 && c.now().Sub(s.lastAccess) < c.opts.pollInterval {
			continue
		}
		if err := s.poll(ctx, c); err != nil {
			return nil, err
		}
	}
	if err := c.retireDrained(ctx); err != nil {
		return nil, err
	}

	var best *shard
	var bestRec Record
	for _, s := range c.active() {
		r, ok := s.buf.peek()
		if !ok {
			continue
		}
		if best == nil || recordBefore(r, s.discovery, bestRec, best.discovery) {
			best, bestRec = s, r
		}
	}
	if best == nil {
		return nil, nil
	}
	r, _ := best.buf.pop()
	best.lastDelivered = r.SequenceNumber
	return &r, nil
}

// Heartbeat refreshes any iterator that has sat unused long enough to risk
// expiring server-side, without disturbing the read position. It is the
// caller's job to invoke this on an interval; the coordinator never runs
// time-driven work on its own.
func (c *Coordinator) Heartbeat(ctx context.Context) error {
	deadline := c.now().Add(-c.opts.heartbeatAge)
	for _, s := range c.active() {
		if s.closed || s.iterator == "" {
			continue
		}
		if s.lastAccess.After(deadline) {
			continue
		}
		if err := s.refresh(ctx, c); err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		c.logger.Debug("refreshed idle shard iterator", "shard", s.id)
	}
	return nil
}

// active returns shards whose parent is no longer in the forest, in
// discovery order. A shard with a live parent contributes nothing until the
// parent drains, preserving per-partition order across splits.
func (c *Coordinator) active() []*shard {
	out := make([]*shard, 0, len(c.shards))
	for _, s := range c.shards {
		if _, parentAlive := c.shards[s.parentID]; parentAlive {
			continue
		}
		out = append(out, s)
	}
	sortByDiscovery(out)
	return out
}

func sortByDiscovery(shards []*shard) {
	sort.Slice(shards, func(i, j int) bool { return shards[i].discovery < shards[j].discovery })
}

// retainedStart is the oldest sequence number the store still retains for a
// shard, or "" when unreported.
func retainedStart(sd streamtypes.Shard) string {
	if sd.SequenceNumberRange == nil || sd.SequenceNumberRange.StartingSequenceNumber == nil {
		return ""
	}
	return *sd.SequenceNumberRange.StartingSequenceNumber
}

// retireDrained removes shards that are closed and fully consumed, after
// making sure their children are known to the forest.
func (c *Coordinator) retireDrained(ctx context.Context) error {
	var drained []*shard
	for _, s := range c.shards {
		if s.drained() {
			drained = append(drained, s)
		}
	}
	if len(drained) == 0 {
		return nil
	}
	// A closed shard's children may not have been seen yet; refresh the
	// forest once before dropping parents.
	described, err := c.describe(ctx)
	if err != nil {
		return err
	}
	for _, sd := range described {
		if _, known := c.shards[*sd.ShardId]; !known {
			c.add(*sd.ShardId, orEmpty(sd.ParentShardId), TrimHorizon())
		}
	}
	for _, s := range drained {
		delete(c.shards, s.id)
		c.logger.Debug("retired drained shard", "shard", s.id)
	}
	return nil
}

func (c *Coordinator) add(id, parentID string, pos Position) *shard {
	s := &shard{
		id:        id,
		parentID:  parentID,
		position:  pos,
		discovery: c.discovered,
		buf:       newRecordBuffer(c.opts.bufferLimit),
	}
	c.discovered++
	c.shards[id] = s
	return s
}

// describe pages through DescribeStream and returns all currently reported
// shards in report order.
func (c *Coordinator) describe(ctx context.Context) ([]streamtypes.Shard, error) {
	var out []streamtypes.Shard
	var exclusiveStart *string
	for {
		resp, err := ddbsdk.Do(ctx, c.caller, "DescribeStream", func(ctx context.Context) (*dynamodbstreams.DescribeStreamOutput, error) {
			return c.api.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
				StreamArn:             &c.streamARN,
				ExclusiveStartShardId: exclusiveStart,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("describe stream: %w", err)
		}
		desc := resp.StreamDescription
		if desc == nil {
			break
		}
		out = append(out, desc.Shards...)
		if desc.LastEvaluatedShardId == nil {
			break
		}
		exclusiveStart = desc.LastEvaluatedShardId
	}
	return out, nil
}

// recordBefore is the merge order: approximate creation time, then sequence
// number, then shard discovery order. Exact total order across shards is not
// guaranteed for concurrent writers; this is the documented approximation.
func recordBefore(a Record, da int, b Record, db int) bool {
	if !a.ApproximateCreationTime.Equal(b.ApproximateCreationTime) {
		return a.ApproximateCreationTime.Before(b.ApproximateCreationTime)
	}
	if a.SequenceNumber != b.SequenceNumber {
		return sequenceLess(a.SequenceNumber, b.SequenceNumber)
	}
	return da < db
}

func shardIndex(shards []streamtypes.Shard) map[string]streamtypes.Shard {
	byID := make(map[string]streamtypes.Shard, len(shards))
	for _, sd := range shards {
		byID[*sd.ShardId] = sd
	}
	return byID
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
