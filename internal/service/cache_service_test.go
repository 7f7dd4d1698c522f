package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	m.ttls[key] = ttl
	return nil
}

func TestCacheServiceRoundTripAndDefaultTTL(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), 5*time.Minute, nil, true)

	require.NoError(t, svc.Set(context.Background(), "rec:1", map[string]string{"id": "rec-1"}, 0))
	assert.Equal(t, 5*time.Minute, repo.ttls["rec:1"])

	var out map[string]string
	hit, err := svc.Get(context.Background(), "rec:1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "rec-1", out["id"])

	hit, err = svc.Get(context.Background(), "rec:2", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceDisabledNeverTouchesRepo(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, false)

	require.NoError(t, svc.Set(context.Background(), "rec:1", "x", time.Minute))
	assert.Empty(t, repo.entries)

	var out string
	hit, err := svc.Get(context.Background(), "rec:1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out string
	hit, err := svc.Get(context.Background(), "rec:1", &out)
	assert.False(t, hit)
	assert.EqualError(t, err, "connection refused")
}
