package raftchaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(ids ...string) *Config {
	nodes := make([]NodeConfig, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, NodeConfig{
			ID:         id,
			ClientAddr: "127.0.0.1:0",
			MgmtAddr:   "127.0.0.1:0",
		})
	}
	return &Config{
		Nodes: nodes,
		Workload: WorkloadConfig{
			Clients:        1,
			Keys:           4,
			RequestTimeout: Duration(time.Second),
			Duration:       Duration(5 * time.Second),
		},
		Chaos: ChaosConfig{
			Interval:   Duration(10 * time.Millisecond),
			Steps:      4,
			Latency:    Duration(50 * time.Millisecond),
			PacketLoss: 0.1,
			Reordering: true,
			Seed:       11,
		},
	}
}

func TestScenarioRunCleanCluster(t *testing.T) {
	cfg := testConfig("a", "b", "c")
	store := newMemStore()
	cluster, fakes := fakeCluster(store, "a", "b", "c")
	s, err := NewScenarioWithCluster(cfg, cluster)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.Report.Passed(),
		"mutex-backed fakes must yield a clean history: %+v", result.Report.Violations)
	assert.Equal(t, 4, result.Stats["fault_steps"])
	assert.Greater(t, result.Stats["ops_recorded"].(int), 0)
	for _, f := range fakes {
		assert.GreaterOrEqual(t, f.heals, 4, "every step is followed by a heal")
	}
}

func TestScenarioDetectsStaleReads(t *testing.T) {
	cfg := testConfig("a", "b", "c")
	cfg.Workload.Clients = 3
	store := newMemStore()
	cluster, fakes := fakeCluster(store, "a", "b", "c")
	for _, f := range fakes {
		f.staleReads = true
	}
	s, err := NewScenarioWithCluster(cfg, cluster)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Report.Passed(),
		"reads of values nobody wrote must be flagged")
}

func TestScenarioSeededScheduleReproducible(t *testing.T) {
	cfg := testConfig("a", "b", "c")
	store := newMemStore()
	clusterA, _ := fakeCluster(store, "a", "b", "c")
	clusterB, _ := fakeCluster(store, "a", "b", "c")
	first, err := NewScenarioWithCluster(cfg, clusterA)
	require.NoError(t, err)
	second, err := NewScenarioWithCluster(cfg, clusterB)
	require.NoError(t, err)

	require.Equal(t, first.schedule.Size(), second.schedule.Size())
	for first.schedule.Size() > 0 {
		a, _ := first.schedule.Pop()
		b, _ := second.schedule.Pop()
		assert.Equal(t, a.kind, b.kind)
	}
}

func TestScenarioSurvivesUnreachableNodes(t *testing.T) {
	cfg := testConfig("a", "b", "c")
	store := newMemStore()
	cluster, fakes := fakeCluster(store, "a", "b", "c")
	fakes[1].failMgmt = true
	fakes[1].failClient = true
	s, err := NewScenarioWithCluster(cfg, cluster)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err, "an unreachable node never aborts a run")
	assert.True(t, result.Report.Passed())
	assert.Greater(t, result.Stats["fault_failures"].(int), 0)
}

func TestScenarioRecordsHistory(t *testing.T) {
	cfg := testConfig("a", "b")
	cfg.Chaos.Steps = 1
	cfg.RecordHistory = true
	cfg.RecordPath = t.TempDir()
	store := newMemStore()
	cluster, _ := fakeCluster(store, "a", "b")
	s, err := NewScenarioWithCluster(cfg, cluster)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, cfg.RecordPath+"/"+result.RunID+".json")
}

func TestScenarioStopsOnContextCancel(t *testing.T) {
	cfg := testConfig("a", "b")
	cfg.Chaos.Steps = 1000
	cfg.Chaos.Interval = Duration(50 * time.Millisecond)
	store := newMemStore()
	cluster, _ := fakeCluster(store, "a", "b")
	s, err := NewScenarioWithCluster(cfg, cluster)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_, _ = s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}
