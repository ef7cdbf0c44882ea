package stream

import (
	"context"
	"fmt"
)

// Token is a serializable snapshot of the coordinator's whole state: the
// shard forest and each shard's resume position. It is plain nested
// maps/lists/strings so callers can persist it anywhere (JSON-friendly) and
// rebuild the coordinator after a restart without replaying history.
type Token struct {
	StreamARN string       `json:"streamArn"`
	Shards    []ShardState `json:"shards"`
	Active    []string     `json:"active"`
}

// ShardState is one shard's resume point. Position is AfterSequence of the
// last record the caller actually received; records that were fetched but
// never yielded are deliberately re-fetched on restore.
type ShardState struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parentId,omitempty"`
	Position Position `json:"position"`
}

// Token serializes the current shard forest.
func (c *Coordinator) Token() Token {
	t := Token{StreamARN: c.streamARN}
	for _, s := range c.allInDiscoveryOrder() {
		pos := s.position
		if s.lastDelivered != "" {
			pos = AfterSequence(s.lastDelivered)
		}
		t.Shards = append(t.Shards, ShardState{
			ID:       s.id,
			ParentID: s.parentID,
			Position: pos,
		})
	}
	for _, s := range c.active() {
		t.Active = append(t.Active, s.id)
	}
	return t
}

// Restore rebuilds the shard forest from a token.
//
// Shards the store no longer reports have fallen out of retention; they are
// pruned, and the gap is bridged by their surviving descendants starting at
// their own trim horizon. A token position older than a surviving shard's
// retained range is likewise bumped to the trim horizon. Both are expected
// for old tokens and logged, never failed on.
func (c *Coordinator) Restore(ctx context.Context, t Token) error {
	if t.StreamARN != c.streamARN {
		return fmt.Errorf("token is for stream %q, coordinator is bound to %q", t.StreamARN, c.streamARN)
	}
	described, err := c.describe(ctx)
	if err != nil {
		return err
	}
	byID := shardIndex(described)

	fromToken := make(map[string]ShardState, len(t.Shards))
	for _, st := range t.Shards {
		if _, alive := byID[st.ID]; !alive {
			c.logger.Info("token shard expired past retention, skipping forward",
				"stream", c.streamARN, "shard", st.ID)
			continue
		}
		fromToken[st.ID] = st
	}

	c.shards = make(map[string]*shard)
	c.discovered = 0
	for _, sd := range described {
		id := *sd.ShardId
		st, known := fromToken[id]
		if !known {
			// Unknown to the token: either a descendant created since the
			// token was cut, or the bridge past a pruned ancestor. Its trim
			// horizon holds nothing the token already consumed.
			c.add(id, orEmpty(sd.ParentShardId), TrimHorizon())
			continue
		}
		pos := st.Position
		if start := retainedStart(sd); start != "" && pos.SequenceNumber != "" &&
			sequenceLess(pos.SequenceNumber, start) {
			c.logger.Info("token position trimmed, moving to trim horizon",
				"stream", c.streamARN, "shard", id, "sequence", pos.SequenceNumber)
			pos = TrimHorizon()
		}
		c.add(id, orEmpty(sd.ParentShardId), pos)
	}
	c.positioned = true
	return nil
}

func (c *Coordinator) allInDiscoveryOrder() []*shard {
	out := make([]*shard, 0, len(c.shards))
	for _, s := range c.shards {
		out = append(out, s)
	}
	sortByDiscovery(out)
	return out
}
