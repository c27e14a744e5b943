package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

func setupTestRedis(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(client, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func summary(id string, nrw float64) engine.ZoneSummary {
	return engine.ZoneSummary{
		ID:          dma.ID(id),
		Nodes:       []network.NodeID{"V1"},
		Boundary:    []network.EdgeID{"P1"},
		TargetNRW:   15,
		NRW:         &nrw,
		GeneratedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPutAndGetZone(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.PutZone(ctx, summary("Zone-A", 18)))
	assert.True(t, mr.Exists("waternet:zone:Zone-A"))
	assert.Equal(t, DefaultTTL, mr.TTL("waternet:zone:Zone-A"))

	got, err := c.GetZone(ctx, "Zone-A")
	require.NoError(t, err)
	require.NotNil(t, got.NRW)
	assert.InDelta(t, 18.0, *got.NRW, 1e-9)
	assert.Equal(t, []network.EdgeID{"P1"}, got.Boundary)
}

func TestGetZone_Missing(t *testing.T) {
	_, c := setupTestRedis(t)

	_, err := c.GetZone(context.Background(), "Zone-Z")
	assert.ErrorIs(t, err, fault.ErrNoData)
}

func TestZones_TrimsExpired(t *testing.T) {
	mr, c := setupTestRedis(t, WithTTL(time.Minute), WithPrefix("t:"))
	ctx := context.Background()

	require.NoError(t, c.PutZone(ctx, summary("Zone-B", 9)))
	require.NoError(t, c.PutZone(ctx, summary("Zone-A", 18)))

	zones, err := c.Zones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, dma.ID("Zone-A"), zones[0].ID)

	mr.FastForward(2 * time.Minute)
	zones, err = c.Zones(ctx)
	require.NoError(t, err)
	assert.Empty(t, zones)

	members, err := mr.Members("t:index")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestPutZone_ServerDown(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	err := c.PutZone(context.Background(), summary("Zone-A", 1))
	assert.Error(t, err)
}
