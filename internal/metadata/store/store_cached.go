package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"tokenmeta/internal/metadata/metrics"
	"tokenmeta/internal/metadata/models"
	"tokenmeta/pkg/platform/circuit"
)

const (
	cacheKeyPrefix = "tokenmeta:{"
	// generationTTL bounds how long an eviction counter outlives its last
	// write. It must exceed any read that races a write.
	generationTTL = 24 * time.Hour
)

// fillScript stores an object only if no eviction happened since the reader
// sampled the subject's generation, so a slow miss cannot resurrect a copy
// older than the last write.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// evictScript bumps the generation and drops the cached object atomically.
var evictScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return redis.call('DEL', KEYS[1])
`)

// Backend is the store contract the cache decorates.
type Backend interface {
	FindOne(ctx context.Context, subject string) (*models.Object, error)
	InsertOne(ctx context.Context, obj *models.Object) error
	UpdateOne(ctx context.Context, subject string, u models.Update) error
	Find(ctx context.Context, subjects []string) ([]*models.Object, error)
	Ping(ctx context.Context) error
}

// Cached is a read-through Redis cache in front of a Backend. Writes go to the
// backend first and then evict the subject, bumping its generation. A miss
// records the generation before reading the backend and fills only if it is
// unchanged. Redis failures degrade to backend reads and are never returned
// to callers. With a breaker configured, reads and fills skip Redis entirely
// while it is open.
type Cached struct {
	next    Backend
	client  redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	breaker *circuit.Breaker
}

type CachedOption func(*Cached)

func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(c *Cached) {
		c.logger = logger
	}
}

func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

func WithCacheBreaker(b *circuit.Breaker) CachedOption {
	return func(c *Cached) {
		c.breaker = b
	}
}

func NewCached(next Backend, client redis.Cmdable, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{next: next, client: client, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Cached) FindOne(ctx context.Context, subject string) (*models.Object, error) {
	if !c.available() {
		return c.next.FindOne(ctx, subject)
	}
	gens := map[string]string{}
	values, err := c.client.MGet(ctx, cacheKey(subject), generationKey(subject)).Result()
	switch {
	case err != nil:
		c.cacheError(ctx, "cache read failed", err)
	case values[0] != nil:
		c.succeeded(ctx)
		if raw, ok := values[0].(string); ok {
			if obj, ok := c.decode(ctx, subject, []byte(raw)); ok {
				c.metrics.ObserveCacheLookup("hit")
				return obj, nil
			}
		}
	default:
		c.succeeded(ctx)
		c.metrics.ObserveCacheLookup("miss")
		gens[subject] = generation(values[1])
	}

	obj, err := c.next.FindOne(ctx, subject)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, []*models.Object{obj}, gens)
	return obj, nil
}

// FindOneFresh bypasses the cache. Writes use it to decide on existence and
// sequence numbers.
func (c *Cached) FindOneFresh(ctx context.Context, subject string) (*models.Object, error) {
	return c.next.FindOne(ctx, subject)
}

func (c *Cached) Find(ctx context.Context, subjects []string) ([]*models.Object, error) {
	if len(subjects) == 0 {
		return []*models.Object{}, nil
	}
	if !c.available() {
		return c.next.Find(ctx, subjects)
	}
	keys := make([]string, 0, 2*len(subjects))
	for _, s := range subjects {
		keys = append(keys, cacheKey(s))
	}
	for _, s := range subjects {
		keys = append(keys, generationKey(s))
	}

	cached := make(map[string]*models.Object, len(subjects))
	gens := make(map[string]string, len(subjects))
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.cacheError(ctx, "cache batch read failed", err)
		values = nil
	} else {
		c.succeeded(ctx)
	}
	for i := 0; i < len(values)/2; i++ {
		s, ok := values[i].(string)
		if !ok {
			gens[subjects[i]] = generation(values[len(subjects)+i])
			continue
		}
		if obj, ok := c.decode(ctx, subjects[i], []byte(s)); ok {
			cached[subjects[i]] = obj
		}
	}

	missing := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if _, ok := cached[s]; ok {
			c.metrics.ObserveCacheLookup("hit")
			continue
		}
		if err == nil {
			c.metrics.ObserveCacheLookup("miss")
		}
		missing = append(missing, s)
	}
	if len(missing) > 0 {
		loaded, err := c.next.Find(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, loaded, gens)
		for _, obj := range loaded {
			cached[obj.Subject] = obj
		}
	}

	out := make([]*models.Object, 0, len(cached))
	for _, s := range subjects {
		if obj, ok := cached[s]; ok {
			out = append(out, obj)
			delete(cached, s)
		}
	}
	return out, nil
}

func (c *Cached) InsertOne(ctx context.Context, obj *models.Object) error {
	if err := c.next.InsertOne(ctx, obj); err != nil {
		return err
	}
	c.evict(ctx, obj.Subject)
	return nil
}

// UpdateOne evicts even when the backend rejects the update, since a conflict
// means the cached copy is already stale.
func (c *Cached) UpdateOne(ctx context.Context, subject string, u models.Update) error {
	err := c.next.UpdateOne(ctx, subject, u)
	c.evict(ctx, subject)
	return err
}

func (c *Cached) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return c.next.Ping(ctx)
}

func (c *Cached) decode(ctx context.Context, subject string, raw []byte) (*models.Object, bool) {
	var obj models.Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "subject", subject, "error", err)
		c.evict(ctx, subject)
		return nil, false
	}
	return &obj, true
}

// fill caches objects whose generation was sampled before the backend read.
// Objects without a sample are skipped.
func (c *Cached) fill(ctx context.Context, objects []*models.Object, gens map[string]string) {
	if len(objects) == 0 || len(gens) == 0 || !c.available() {
		return
	}
	pipe := c.client.Pipeline()
	queued := 0
	for _, obj := range objects {
		gen, ok := gens[obj.Subject]
		if !ok {
			continue
		}
		raw, err := json.Marshal(obj)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping cache fill", "subject", obj.Subject, "error", err)
			continue
		}
		fillScript.Eval(ctx, pipe,
			[]string{cacheKey(obj.Subject), generationKey(obj.Subject)},
			gen, raw, c.ttl.Milliseconds())
		queued++
	}
	if queued == 0 {
		return
	}
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		c.cacheError(ctx, "cache fill failed", err)
		return
	}
	c.succeeded(ctx)
	for _, cmd := range cmds {
		if sc, ok := cmd.(*redis.Cmd); ok {
			if n, _ := sc.Int64(); n == 0 {
				c.metrics.ObserveCacheLookup("stale_fill")
			}
		}
	}
}

// evict ignores the breaker: a skipped eviction would serve a stale object
// once Redis is back.
func (c *Cached) evict(ctx context.Context, subject string) {
	err := evictScript.Run(ctx, c.client,
		[]string{cacheKey(subject), generationKey(subject)},
		generationTTL.Milliseconds()).Err()
	if err != nil {
		c.cacheError(ctx, "cache eviction failed", err)
		return
	}
	c.succeeded(ctx)
}

func (c *Cached) available() bool {
	if c.breaker == nil || c.breaker.Allow() {
		return true
	}
	c.metrics.ObserveCacheLookup("bypass")
	return false
}

func (c *Cached) succeeded(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "cache circuit closed", "breaker", c.breaker.Name())
	}
}

func (c *Cached) cacheError(ctx context.Context, msg string, err error) {
	c.metrics.ObserveCacheLookup("error")
	c.logger.WarnContext(ctx, msg, "error", err)
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "cache circuit opened, bypassing redis", "breaker", c.breaker.Name())
	}
}

// Both keys of a subject share a hash tag so the scripts stay on one slot.
func cacheKey(subject string) string {
	return cacheKeyPrefix + subject + "}:object"
}

func generationKey(subject string) string {
	return cacheKeyPrefix + subject + "}:gen"
}

func generation(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "0"
}
