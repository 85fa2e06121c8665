package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"querypanel/core/engine"

	"golang.org/x/sync/errgroup"
)

// ShardChooser maps a routing key to a shard id.
type ShardChooser func(key string, shardIDs []string) string

// HashChooser spreads keys over shards with FNV-1a.
func HashChooser(key string, shardIDs []string) string {
	if len(shardIDs) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return shardIDs[int(h.Sum32()%uint32(len(shardIDs)))]
}

type Sharded struct {
	ids     []string
	shards  map[string]*Session
	chooser ShardChooser
}

func NewSharded(shards map[string]*engine.Engine, chooser ShardChooser) *Sharded {
	if chooser == nil {
		chooser = HashChooser
	}
	s := &Sharded{shards: make(map[string]*Session, len(shards)), chooser: chooser}
	for id, e := range shards {
		if e == nil {
			continue
		}
		s.ids = append(s.ids, id)
		s.shards[id] = New(e)
	}
	sort.Strings(s.ids)
	return s
}

func (s *Sharded) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *Sharded) Shard(id string) (*Session, error) {
	sess, ok := s.shards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShard, id)
	}
	return sess, nil
}

func (s *Sharded) ForKey(key string) (*Session, error) {
	return s.Shard(s.chooser(key, s.ids))
}

// Each runs fn on every shard concurrently and returns the first error.
func (s *Sharded) Each(ctx context.Context, fn func(ctx context.Context, id string, sess *Session) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range s.ids {
		id, sess := id, s.shards[id]
		g.Go(func() error {
			return fn(gctx, id, sess)
		})
	}
	return g.Wait()
}

// ResolveEngines returns the engine of every shard, ordered by shard id.
func (s *Sharded) ResolveEngines() ([]*engine.Engine, error) {
	out := make([]*engine.Engine, 0, len(s.ids))
	for _, id := range s.ids {
		e, err := s.shards[id].GetBind()
		if err != nil {
			return nil, fmt.Errorf("shard %s: %w", id, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Sharded) Close() error {
	for _, sess := range s.shards {
		_ = sess.Close()
	}
	return nil
}
