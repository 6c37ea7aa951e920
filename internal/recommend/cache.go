package recommend

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache holds computed recommendations per learner and enrollment filter.
// Every Invalidate bumps the learner's generation. Set only stores a
// recommendation computed under the current generation, so a decision
// ranked from inputs read before a commit is never cached after it.
type Cache interface {
	Get(ctx context.Context, learnerID, filterKey string) (*Recommendation, bool, error)
	Generation(ctx context.Context, learnerID string) (int64, error)
	Set(ctx context.Context, learnerID, filterKey string, gen int64, rec *Recommendation) (bool, error)
	Invalidate(ctx context.Context, learnerID string) error
}

// FilterKey is stable for any ordering of the same enrollment ids.
func FilterKey(enrollmentIDs []string) string {
	if len(enrollmentIDs) == 0 {
		return "all"
	}
	ids := append([]string(nil), enrollmentIDs...)
	sort.Strings(ids)
	sum := sha1.Sum([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:8])
}

// ── Redis ─────────────────────────────────────────────────

// genTTL keeps idle generation counters from piling up.
const genTTL = 7 * 24 * time.Hour

// setScript writes the hash field only while the generation is unchanged.
// KEYS: generation, hash. ARGV: generation, field, value, ttl ms.
var setScript = goredis.NewScript(`
local cur = redis.call("GET", KEYS[1]) or "0"
if cur ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[2], ARGV[4])
return 1
`)

// RedisCache keeps one hash per learner so a profile commit can drop every
// filter variant at once. Both keys of a learner share a hash slot.
type RedisCache struct {
	rdb goredis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

func NewRedisCache(rdb goredis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, now: time.Now}
}

func cacheKey(learnerID string) string {
	return "byteos:nba:{" + learnerID + "}"
}

func genKey(learnerID string) string {
	return cacheKey(learnerID) + ":gen"
}

func (c *RedisCache) Get(ctx context.Context, learnerID, filterKey string) (*Recommendation, bool, error) {
	raw, err := c.rdb.HGet(ctx, cacheKey(learnerID), filterKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached recommendation: %w", err)
	}

	var rec Recommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached recommendation: %w", err)
	}
	if c.now().Sub(rec.Action.ComputedAt) > c.ttl {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (c *RedisCache) Generation(ctx context.Context, learnerID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(learnerID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cache generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Set(ctx context.Context, learnerID, filterKey string, gen int64, rec *Recommendation) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode recommendation: %w", err)
	}
	n, err := setScript.Run(ctx, c.rdb,
		[]string{genKey(learnerID), cacheKey(learnerID)},
		strconv.FormatInt(gen, 10), filterKey, raw, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache recommendation: %w", err)
	}
	return n == 1, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, learnerID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, genKey(learnerID))
	pipe.Expire(ctx, genKey(learnerID), genTTL)
	pipe.Del(ctx, cacheKey(learnerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate recommendations: %w", err)
	}
	return nil
}

// ── No-op ─────────────────────────────────────────────────

// NopCache never hits. Used when Redis is not configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string, string) (*Recommendation, bool, error) {
	return nil, false, nil
}
func (NopCache) Generation(context.Context, string) (int64, error) { return 0, nil }
func (NopCache) Set(context.Context, string, string, int64, *Recommendation) (bool, error) {
	return false, nil
}
func (NopCache) Invalidate(context.Context, string) error { return nil }
