package raftchaos

import (
	"math/rand"

	"github.com/cockroachdb/errors"
)

// Cluster is the static membership of the system under test, one handle per
// member. Membership does not change for the lifetime of a run.
type Cluster struct {
	nodes []NodeHandle
	byID  map[string]NodeHandle
}

// NewCluster builds a cluster over the given handles.
func NewCluster(nodes []NodeHandle) (*Cluster, error) {
	c := &Cluster{
		nodes: nodes,
		byID:  make(map[string]NodeHandle, len(nodes)),
	}
	for _, n := range nodes {
		if _, ok := c.byID[n.ID()]; ok {
			return nil, errors.Newf("duplicate node id %q", n.ID())
		}
		c.byID[n.ID()] = n
	}
	return c, nil
}

// NewHTTPCluster builds a cluster of HTTP-backed handles from config.
func NewHTTPCluster(cfg *Config) (*Cluster, error) {
	nodes := make([]NodeHandle, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		nodes = append(nodes, NewHTTPNode(nc.ID, nc.ClientAddr, nc.MgmtAddr, cfg.Workload.RequestTimeout.Std()))
	}
	return NewCluster(nodes)
}

// Nodes returns the member handles in declaration order.
func (c *Cluster) Nodes() []NodeHandle {
	return c.nodes
}

// IDs returns the member ids in declaration order.
func (c *Cluster) IDs() []string {
	ids := make([]string, 0, len(c.nodes))
	for _, n := range c.nodes {
		ids = append(ids, n.ID())
	}
	return ids
}

// Node returns the handle for the given id.
func (c *Cluster) Node(id string) (NodeHandle, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// RandomNode picks a member uniformly using the caller's random source.
func (c *Cluster) RandomNode(r *rand.Rand) NodeHandle {
	return c.nodes[r.Intn(len(c.nodes))]
}

// Size returns the number of members.
func (c *Cluster) Size() int {
	return len(c.nodes)
}
