package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/journal"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/pubsub"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var pipe = network.SegmentAttrs{Material: network.MaterialDuctileIron, DiameterMM: 200, LengthKM: 1.2}

func newEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// seed builds R1 -P1- V1 -P2- PS-01 with Zone-A over {V1, PS-01}
func seed(t *testing.T, e *Engine) {
	t.Helper()
	for _, n := range []network.Node{
		{ID: "R1", Attrs: network.ReservoirAttrs{CapacityM3: 5000}},
		{ID: "V1", Attrs: network.ValveAttrs{DiameterMM: 200, ValveType: network.ValveGate}},
		{ID: "PS-01", Attrs: network.SensorAttrs{Measure: network.MeasurePressure, Unit: "bar", SegmentID: "P2"}},
	} {
		_, err := e.RegisterNode(n)
		require.NoError(t, err)
	}
	_, err := e.RegisterEdge("P1", "R1", "V1", pipe)
	require.NoError(t, err)
	_, err = e.RegisterEdge("P2", "V1", "PS-01", pipe)
	require.NoError(t, err)
	_, err = e.CreateDMA("Zone-A", []network.NodeID{"V1", "PS-01"}, 18)
	require.NoError(t, err)
}

func tiered(sensor string) alerts.Rule {
	return alerts.Rule{
		SensorID:  sensor,
		Type:      alerts.LowPressure,
		Direction: alerts.Below,
		Levels: []alerts.Level{
			{Limit: 0.5, Severity: alerts.SeverityCritical},
			{Limit: 2.0, Severity: alerts.SeverityMedium},
		},
	}
}

func TestZoneSummaryScenario(t *testing.T) {
	e := newEngine(t, DefaultConfig(), WithMetrics(metrics.NewRegistry()))
	seed(t, e)
	require.NoError(t, e.Recover())

	boundary, err := e.Zones().BoundaryEdges("Zone-A")
	require.NoError(t, err)
	assert.Equal(t, []network.EdgeID{"P1"}, boundary)

	sum, err := e.ZoneSummary("Zone-A")
	require.NoError(t, err)
	assert.Nil(t, sum.NRW, "no volumes yet")

	require.NoError(t, e.SubmitVolume("Zone-A", 1000, 820, time.Time{}))
	require.Eventually(t, func() bool {
		_, err := e.NRW().NRWPercent("Zone-A")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	sum, err = e.ZoneSummary("Zone-A")
	require.NoError(t, err)
	require.NotNil(t, sum.NRW)
	assert.InDelta(t, 18.0, *sum.NRW, 1e-9)
	require.NotNil(t, sum.WithinTarget)
	assert.True(t, *sum.WithinTarget)
	require.NotNil(t, sum.LossM3)
	assert.InDelta(t, 180.0, *sum.LossM3, 1e-9)
	assert.Nil(t, sum.LossPerConnection, "no connections recorded")

	require.NoError(t, e.SetConnections("Zone-A", 90))
	sum, err = e.ZoneSummary("Zone-A")
	require.NoError(t, err)
	require.NotNil(t, sum.LossPerConnection)
	assert.InDelta(t, 2.0, *sum.LossPerConnection, 1e-9)

	_, err = e.ZoneSummary("Zone-Z")
	assert.ErrorIs(t, err, fault.ErrUnknownDMA)
	assert.Len(t, e.ZoneSummaries(), 1)
}

func TestSubmitReading_NotReady(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	seed(t, e)

	err := e.SubmitReading("PS-01", 3, "bar", time.Time{})
	require.ErrorIs(t, err, fault.ErrNotReady)
	assert.True(t, fault.IsResourceExhausted(err))
	assert.False(t, e.Ready())

	require.NoError(t, e.Recover())
	assert.True(t, e.Ready())
	require.NoError(t, e.SubmitReading("PS-01", 3, "bar", time.Time{}))
}

func TestSubmitReading_Validation(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	seed(t, e)
	require.NoError(t, e.Recover())

	tests := []struct {
		name   string
		sensor string
		value  float64
		unit   string
		want   error
	}{
		{"unknown sensor", "PS-99", 1, "bar", fault.ErrUnknownSensor},
		{"not a sensor", "V1", 1, "bar", fault.ErrUnknownSensor},
		{"nan", "PS-01", math.NaN(), "bar", fault.ErrInvalidValue},
		{"inf", "PS-01", math.Inf(1), "bar", fault.ErrInvalidValue},
		{"unit mismatch", "PS-01", 1, "kPa", fault.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.SubmitReading(tt.sensor, tt.value, tt.unit, time.Time{})
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, fault.IsValidation(err))
		})
	}

	assert.ErrorIs(t, e.SubmitVolume("Zone-Z", 1, 1, time.Time{}), fault.ErrUnknownDMA)
	assert.ErrorIs(t, e.SubmitVolume("Zone-A", -1, 1, time.Time{}), fault.ErrInvalidValue)
}

func TestSubmitReading_QueueSaturated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IngestWorkers = 1
	cfg.IngestQueueDepth = 1
	e := newEngine(t, cfg)
	seed(t, e)
	require.NoError(t, e.Recover())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, e.ingest.TrySubmit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, e.SubmitReading("PS-01", 3, "bar", time.Time{}))
	err := e.SubmitReading("PS-01", 3, "bar", time.Time{})
	require.ErrorIs(t, err, fault.ErrQueueSaturated)
	assert.True(t, fault.Retryable(err))

	close(release)
	require.Eventually(t, func() bool { return e.Readings().Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCriticalReadingOpensCase(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	seed(t, e)
	_, err := e.SetThreshold(tiered("PS-01"))
	require.NoError(t, err)
	require.NoError(t, e.Recover())

	sub, err := e.Bus().Subscribe(context.Background(), pubsub.TopicLeakCaseStatusChanged)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, e.SubmitReading("PS-01", 0.2, "", time.Time{}))

	select {
	case msg := <-sub.Channel():
		ev, ok := msg.Payload.(CaseEvent)
		require.True(t, ok)
		assert.Equal(t, leaks.ChangeCreated, ev.Kind)
		assert.Equal(t, leaks.SourceAlert, ev.Case.Source)
		assert.Equal(t, "P2", ev.Case.Location.SegmentID)
		assert.Equal(t, "Zone-A", ev.Case.DMA)
		assert.NotEmpty(t, ev.Case.AlertID)
	case <-time.After(time.Second):
		t.Fatal("no case event")
	}

	active, err := e.AlertsForZone("Zone-A")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, alerts.SeverityCritical, active[0].Severity)

	sum, err := e.ZoneSummary("Zone-A")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ActiveAlerts)
	assert.Equal(t, 1, sum.OpenCases)

	acked, err := e.AcknowledgeAlert(active[0].ID, "ops")
	require.NoError(t, err)
	assert.Equal(t, alerts.Acknowledged, acked.State)
}

func TestResolvedCaseFlagsRebaseline(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	seed(t, e)
	require.NoError(t, e.Recover())

	id, err := e.ReportLeak(leaks.Location{SegmentID: "P2"}, "wet patch on verge", alerts.SeverityHigh)
	require.NoError(t, err)

	c, err := e.AdvanceCase(id, leaks.Open, leaks.UnderRepair, "crew-7")
	require.NoError(t, err)
	assert.Equal(t, "Zone-A", c.DMA)

	_, err = e.AdvanceCase(id, leaks.Open, leaks.Resolved, "crew-7")
	require.ErrorIs(t, err, fault.ErrConcurrentModification)

	c, err = e.ResolveCase(id, time.Now(), "joint failure", []string{"clamp"}, "crew-7")
	require.NoError(t, err)
	assert.Equal(t, leaks.Resolved, c.Status)
	assert.True(t, e.NRW().RebaselinePending("Zone-A"))
}

func TestAffectedDMAs(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	seed(t, e)

	zones, isolated, err := e.AffectedDMAs("V1")
	require.NoError(t, err)
	assert.Equal(t, []dma.ID{"Zone-A"}, zones)
	assert.Equal(t, []network.NodeID{"PS-01", "V1"}, isolated)

	_, _, err = e.AffectedDMAs("X9")
	assert.ErrorIs(t, err, fault.ErrUnknownNode)
}

func TestNetworkChangedEvent(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	seed(t, e)

	sub, err := e.Bus().Subscribe(context.Background(), pubsub.TopicNetworkChanged)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, e.SetEdgeStatus("P2", network.EdgeUnderRepair))

	select {
	case msg := <-sub.Channel():
		ev := msg.Payload.(NetworkEvent)
		assert.Equal(t, "P2", ev.Edge)
		assert.Equal(t, []dma.ID{"Zone-A"}, ev.DMAs)
	case <-time.After(time.Second):
		t.Fatal("no network event")
	}

	periods, err := e.NRW().Periods("Zone-A")
	require.NoError(t, err)
	require.NotEmpty(t, periods)
	assert.NotEmpty(t, periods[len(periods)-1].Annotations)
}

func TestJournalReplay(t *testing.T) {
	dir := t.TempDir()

	j, err := journal.Open(dir)
	require.NoError(t, err)
	e, err := New(DefaultConfig(), WithJournal(j))
	require.NoError(t, err)
	seed(t, e)
	_, err = e.SetThreshold(tiered("PS-01"))
	require.NoError(t, err)
	require.NoError(t, e.SetConnections("Zone-A", 40))
	registered, err := e.Graph().Node("R1")
	require.NoError(t, err)

	// callers cannot backdate a node
	_, err = e.RegisterNode(network.Node{ID: "V9", Attrs: network.ValveAttrs{DiameterMM: 80, ValveType: network.ValveGate},
		CreatedAt: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	v9, _ := e.Graph().Node("V9")
	assert.NotEqual(t, 1999, v9.CreatedAt.Year())

	// rejected operations never reach the journal
	_, err = e.RegisterEdge("P9", "R1", "R1", pipe)
	require.ErrorIs(t, err, fault.ErrSelfLoop)
	require.NoError(t, e.Close())

	j, err = journal.Open(dir)
	require.NoError(t, err)
	restored := newEngine(t, DefaultConfig(), WithJournal(j))
	require.NoError(t, restored.Recover())

	st := restored.Graph().Stats()
	assert.Equal(t, 4, st.Nodes)

	r1, err := restored.Graph().Node("R1")
	require.NoError(t, err)
	assert.True(t, registered.CreatedAt.Equal(r1.CreatedAt), "replay keeps registration time")
	assert.Equal(t, 2, st.Edges)

	z, err := restored.Zones().Get("Zone-A")
	require.NoError(t, err)
	assert.Equal(t, 40, z.Connections)
	assert.Equal(t, []network.NodeID{"PS-01", "V1"}, z.Nodes)
	assert.True(t, restored.Alerts().HasRules("PS-01"))

	n, err := restored.Graph().Node("PS-01")
	require.NoError(t, err)
	attrs, ok := n.Sensor()
	require.True(t, ok)
	assert.Equal(t, network.EdgeID("P2"), attrs.SegmentID)
}

func TestRollupCondensesExpiredReadings(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newEngine(t, DefaultConfig(), WithClock(func() time.Time { return now }))
	seed(t, e)
	require.NoError(t, e.Recover())

	old := now.Add(-100 * 24 * time.Hour)
	for i, v := range []float64{1, 2, 6} {
		e.Readings().Append(alerts.Reading{SensorID: "PS-01", Value: v, Unit: "bar", Timestamp: old.Add(time.Duration(i) * time.Minute)})
	}
	e.Readings().Append(alerts.Reading{SensorID: "PS-01", Value: 9, Unit: "bar", Timestamp: now.Add(-400 * 24 * time.Hour)})
	e.Readings().Append(alerts.Reading{SensorID: "PS-01", Value: 3, Unit: "bar", Timestamp: now.Add(-time.Hour)})

	e.RollupAll(context.Background())
	assert.Equal(t, 1, e.Readings().Len())

	sums, err := e.ReadingSummaries("Zone-A")
	require.NoError(t, err)
	require.Len(t, sums, 1, "summaries past their own retention are dropped")
	got := sums[0]
	assert.Equal(t, "PS-01", got.SensorID)
	assert.Equal(t, old.Truncate(24*time.Hour), got.Day)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 1.0, got.Min)
	assert.Equal(t, 6.0, got.Max)
	assert.InDelta(t, 3.0, got.Mean, 1e-9)
	assert.Equal(t, "bar", got.Unit)

	_, err = e.ReadingSummaries("Zone-Z")
	require.ErrorIs(t, err, fault.ErrUnknownDMA)
}

func TestRollupDeadline(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	reg := metrics.NewRegistry()
	e := newEngine(t, DefaultConfig(), WithLogger(logging.FromZap(zap.New(core))), WithMetrics(reg))
	seed(t, e)
	require.NoError(t, e.Recover())
	require.NoError(t, e.NRW().IngestVolume("Zone-A", 100, 90, time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.rollupOne(ctx, "Zone-A")
	assert.False(t, res.HasNRW)
	assert.Equal(t, 1, logs.FilterMessage("rollup deadline exceeded").Len())

	results := e.RollupAll(context.Background())
	require.Len(t, results, 1)
	assert.True(t, results[0].HasNRW)
	assert.InDelta(t, 10.0, results[0].NRW, 1e-9)

	z, err := e.Zones().Get("Zone-A")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, z.CurrentNRW, 1e-9)
}

type fakeSnapshots struct{ zones chan ZoneSummary }

func (f fakeSnapshots) PutZone(_ context.Context, s ZoneSummary) error {
	f.zones <- s
	return nil
}

func TestRollupPublishesSnapshot(t *testing.T) {
	snaps := fakeSnapshots{zones: make(chan ZoneSummary, 4)}
	e := newEngine(t, DefaultConfig(), WithSnapshots(snaps))
	seed(t, e)

	e.RollupAll(context.Background())
	select {
	case s := <-snaps.zones:
		assert.Equal(t, dma.ID("Zone-A"), s.ID)
	default:
		t.Fatal("no snapshot written")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RollupInterval = 10 * time.Millisecond
	e := newEngine(t, cfg, WithMetrics(metrics.NewRegistry()))
	seed(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	require.Eventually(t, e.Ready, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
}

func TestClosedEngineRejects(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	seed(t, e)
	require.NoError(t, e.Recover())
	require.NoError(t, e.Close())

	assert.ErrorIs(t, e.SubmitReading("PS-01", 1, "bar", time.Time{}), fault.ErrClosed)
	_, err := e.RegisterNode(network.Node{ID: "R2", Attrs: network.ReservoirAttrs{CapacityM3: 1}})
	assert.ErrorIs(t, err, fault.ErrClosed)
	assert.NoError(t, e.Close())
}
