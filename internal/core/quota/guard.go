// Package quota records upstream quota exhaustion per region pair so further
// calls for that pair are refused locally until the block expires.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/kv"
	"github.com/ev119/erlocator/internal/metrics"
)

const (
	// BlockKeyPrefix namespaces quota blocks in the shared store.
	BlockKeyPrefix = "emergency:quota:block:"

	// DefaultBlockTTL is how long a pair stays blocked after a 429.
	DefaultBlockTTL = 180 * time.Second

	blockValue = "1"
)

// ErrScanUnsupported is returned by List and Reset when the store cannot enumerate keys.
var ErrScanUnsupported = errors.New("kv store does not support listing keys")

// Guard answers "is this region pair blocked?" against the shared store.
// Decisions are never cached locally; every call reads the store.
type Guard struct {
	Store kv.Store
	TTL   time.Duration
}

// New creates a guard. A non-positive ttl uses DefaultBlockTTL.
func New(store kv.Store, ttl time.Duration) *Guard {
	return &Guard{Store: store, TTL: ttl}
}

// Block is one live quota block.
type Block struct {
	Pair      core.RegionPair `json:"pair"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// BlockKey returns the store key for pair.
func BlockKey(pair core.RegionPair) string {
	return BlockKeyPrefix + pair.Region1 + "|" + pair.Region2
}

// ParseBlockKey reverses BlockKey.
func ParseBlockKey(key string) (core.RegionPair, bool) {
	rest, ok := strings.CutPrefix(key, BlockKeyPrefix)
	if !ok {
		return core.RegionPair{}, false
	}
	r1, r2, ok := strings.Cut(rest, "|")
	if !ok {
		return core.RegionPair{}, false
	}
	return core.RegionPair{Region1: r1, Region2: r2}, true
}

// IsBlocked reports whether pair has a live block.
func (g *Guard) IsBlocked(ctx context.Context, pair core.RegionPair) (bool, error) {
	if g == nil || g.Store == nil {
		return false, errors.New("quota guard is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	blocked, err := g.Store.Exists(ctx, BlockKey(pair))
	if err != nil {
		return false, fmt.Errorf("check quota block %s: %w", pair, err)
	}
	return blocked, nil
}

// Block marks pair as quota-exhausted for ttl. A non-positive ttl uses the
// guard's configured TTL.
func (g *Guard) Block(ctx context.Context, pair core.RegionPair, ttl time.Duration) error {
	if g == nil || g.Store == nil {
		return errors.New("quota guard is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = g.BlockTTL()
	}

	if err := g.Store.SetWithTTL(ctx, BlockKey(pair), []byte(blockValue), ttl); err != nil {
		return fmt.Errorf("set quota block %s: %w", pair, err)
	}
	metrics.RecordQuotaBlock()
	return nil
}

// BlockTTL returns the effective block duration.
func (g *Guard) BlockTTL() time.Duration {
	if g == nil || g.TTL <= 0 {
		return DefaultBlockTTL
	}
	return g.TTL
}

// List returns live blocks sorted by pair. The store must implement kv.Scanner.
func (g *Guard) List(ctx context.Context) ([]Block, error) {
	scanner, err := g.scanner()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	entries, err := scanner.Scan(ctx, BlockKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list quota blocks: %w", err)
	}

	blocks := make([]Block, 0, len(entries))
	for _, entry := range entries {
		pair, ok := ParseBlockKey(entry.Key)
		if !ok {
			continue
		}
		blocks = append(blocks, Block{Pair: pair, ExpiresAt: entry.ExpiresAt})
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Pair.Key() < blocks[j].Pair.Key()
	})
	return blocks, nil
}

// Reset clears the block for pair, or every block when pair is nil.
func (g *Guard) Reset(ctx context.Context, pair *core.RegionPair) (int64, error) {
	scanner, err := g.scanner()
	if err != nil {
		return 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if pair == nil {
		n, err := scanner.DeletePrefix(ctx, BlockKeyPrefix)
		if err != nil {
			return 0, fmt.Errorf("reset quota blocks: %w", err)
		}
		return n, nil
	}

	deleted, err := scanner.Delete(ctx, BlockKey(*pair))
	if err != nil {
		return 0, fmt.Errorf("reset quota block %s: %w", pair, err)
	}
	if deleted {
		return 1, nil
	}
	return 0, nil
}

func (g *Guard) scanner() (kv.Scanner, error) {
	if g == nil || g.Store == nil {
		return nil, errors.New("quota guard is not configured")
	}
	scanner, ok := g.Store.(kv.Scanner)
	if !ok {
		return nil, ErrScanUnsupported
	}
	return scanner, nil
}
