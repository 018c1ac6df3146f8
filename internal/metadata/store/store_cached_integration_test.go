//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"tokenmeta/internal/metadata/metrics"
	"tokenmeta/internal/metadata/models"
	"tokenmeta/pkg/testutil/containers"
)

func TestCachedContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &ContractSuite{newStore: func() Backend {
		if err := rc.FlushAll(context.Background()); err != nil {
			t.Fatalf("flush: %v", err)
		}
		return NewCached(NewInMemory(), rc.Client, time.Minute)
	}})
}

type CachedSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backend *InMemory
	metrics *metrics.Metrics
	cached  *Cached
	ctx     context.Context
}

func TestCachedSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedSuite))
}

func (s *CachedSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CachedSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.backend = NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.cached = NewCached(s.backend, s.redis.Client, time.Minute, WithCacheMetrics(s.metrics))
}

func (s *CachedSuite) TestReadThrough() {
	s.Require().NoError(s.cached.InsertOne(s.ctx, sampleObject("token")))

	_, err := s.cached.FindOne(s.ctx, "token")
	s.Require().NoError(err)
	_, err = s.cached.FindOne(s.ctx, "token")
	s.Require().NoError(err)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))

	ttl, err := s.redis.Client.TTL(s.ctx, cacheKey("token")).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *CachedSuite) TestUpdateEvicts() {
	s.Require().NoError(s.cached.InsertOne(s.ctx, sampleObject("token")))
	_, err := s.cached.FindOne(s.ctx, "token")
	s.Require().NoError(err)

	s.Require().NoError(s.cached.UpdateOne(s.ctx, "token", models.Update{
		Set: map[string]models.Value{"ticker": models.String("NEW")},
	}))

	found, err := s.cached.FindOne(s.ctx, "token")
	s.Require().NoError(err)
	s.True(found.Scalars["ticker"].Equal(models.String("NEW")))
}

func (s *CachedSuite) TestBatchMixesHitsAndMisses() {
	s.Require().NoError(s.cached.InsertOne(s.ctx, sampleObject("a")))
	s.Require().NoError(s.cached.InsertOne(s.ctx, sampleObject("b")))
	_, err := s.cached.FindOne(s.ctx, "a")
	s.Require().NoError(err)

	found, err := s.cached.Find(s.ctx, []string{"b", "missing", "a"})
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal("b", found[0].Subject)
	s.Equal("a", found[1].Subject)

	exists, err := s.redis.Client.Exists(s.ctx, cacheKey("b")).Result()
	s.Require().NoError(err)
	s.EqualValues(1, exists)
}
