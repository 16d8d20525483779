package raftchaos

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterMembership(t *testing.T) {
	store := newMemStore()
	cluster, _ := fakeCluster(store, "a", "b", "c")
	assert.Equal(t, 3, cluster.Size())
	assert.Equal(t, []string{"a", "b", "c"}, cluster.IDs())

	n, ok := cluster.Node("b")
	require.True(t, ok)
	assert.Equal(t, "b", n.ID())

	_, ok = cluster.Node("unknown")
	assert.False(t, ok)
}

func TestClusterRejectsDuplicateIDs(t *testing.T) {
	store := newMemStore()
	_, err := NewCluster([]NodeHandle{
		newFakeNode("a", store),
		newFakeNode("a", store),
	})
	assert.Error(t, err)
}

func TestClusterRandomNodeCoversMembership(t *testing.T) {
	store := newMemStore()
	cluster, _ := fakeCluster(store, "a", "b", "c")
	r := rand.New(rand.NewSource(5))
	picked := make(map[string]bool)
	for i := 0; i < 100; i++ {
		picked[cluster.RandomNode(r).ID()] = true
	}
	assert.Len(t, picked, 3)
}

func TestNewHTTPClusterFromConfig(t *testing.T) {
	cfg := &Config{
		Nodes: []NodeConfig{
			{ID: "n1", ClientAddr: "127.0.0.1:8001", MgmtAddr: "127.0.0.1:9001"},
			{ID: "n2", ClientAddr: "127.0.0.1:8002", MgmtAddr: "127.0.0.1:9002"},
		},
		Workload: WorkloadConfig{RequestTimeout: Duration(time.Second)},
	}
	cluster, err := NewHTTPCluster(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, cluster.IDs())
	n1, ok := cluster.Node("n1")
	require.True(t, ok)
	_, isHTTP := n1.(*HTTPNode)
	assert.True(t, isHTTP)
}
