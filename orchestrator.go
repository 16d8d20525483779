package raftchaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"
)

var faultCommands = metrics.GetOrCreateCounter("raftchaos_fault_commands_total")
var faultCommandFailures = metrics.GetOrCreateCounter("raftchaos_fault_command_failures_total")

// NodeError pairs a member id with the error its fault-injection call
// returned. Fan-out operations collect these instead of aborting, a node
// that is unreachable because of an earlier fault is business as usual.
type NodeError struct {
	Node string
	Err  error
}

// ChaosOrchestrator decides and applies fault scenarios across the cluster.
// The random source is injected so a seeded run replays the same schedule.
type ChaosOrchestrator struct {
	cluster *Cluster
	rand    *rand.Rand
}

func NewChaosOrchestrator(cluster *Cluster, r *rand.Rand) *ChaosOrchestrator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ChaosOrchestrator{
		cluster: cluster,
		rand:    r,
	}
}

// RandomPartition shuffles the membership and splits it at a uniformly
// chosen boundary so both sides are non-empty. With fewer than two members
// there is nothing to split and both sides come back empty.
func (o *ChaosOrchestrator) RandomPartition() ([]string, []string) {
	ids := o.cluster.IDs()
	if len(ids) < 2 {
		return []string{}, []string{}
	}
	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	o.rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	split := 1 + o.rand.Intn(len(shuffled)-1)
	sideA := shuffled[:split]
	sideB := shuffled[split:]
	plog.WithFields(logrus.Fields{
		"side_a": sideA,
		"side_b": sideB,
	}).Info("creating partition")
	return sideA, sideB
}

// ApplyPartition tells every node on each side to drop traffic from the
// other side. Per-node failures are collected, not fatal.
func (o *ChaosOrchestrator) ApplyPartition(ctx context.Context, sideA, sideB []string) []NodeError {
	failed := make([]NodeError, 0)
	apply := func(side, peers []string) {
		for _, id := range side {
			n, ok := o.cluster.Node(id)
			if !ok {
				continue
			}
			faultCommands.Inc()
			if err := n.PartitionFrom(ctx, peers); err != nil {
				faultCommandFailures.Inc()
				failed = append(failed, NodeError{Node: id, Err: err})
			}
		}
	}
	apply(sideA, sideB)
	apply(sideB, sideA)
	return failed
}

// BridgePartition splits the membership into two sides that cannot talk to
// each other, with one randomly chosen bridge node left connected to both.
// Needs at least three members; with fewer there is no topology to build
// and everything comes back empty.
func (o *ChaosOrchestrator) BridgePartition(ctx context.Context) (string, []string, []string, []NodeError) {
	ids := o.cluster.IDs()
	if len(ids) < 3 {
		return "", []string{}, []string{}, nil
	}
	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	o.rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	bridge := shuffled[0]
	rest := shuffled[1:]
	left := rest[:len(rest)/2]
	right := rest[len(rest)/2:]
	plog.WithFields(logrus.Fields{
		"bridge": bridge,
		"left":   left,
		"right":  right,
	}).Info("creating bridge partition")
	return bridge, left, right, o.ApplyPartition(ctx, left, right)
}

// CyclicPartition arranges the membership in a ring where every node talks
// only to its two neighbors. Below four members every node already
// neighbors every other, so the ring adds nothing and is skipped.
func (o *ChaosOrchestrator) CyclicPartition(ctx context.Context) []NodeError {
	ids := o.cluster.IDs()
	if len(ids) < 4 {
		return nil
	}
	plog.WithField("ring", ids).Info("creating cyclic partition")
	failed := make([]NodeError, 0)
	for i, id := range ids {
		prev := (i - 1 + len(ids)) % len(ids)
		next := (i + 1) % len(ids)
		blocked := make([]string, 0, len(ids)-3)
		for j, peer := range ids {
			if j != i && j != prev && j != next {
				blocked = append(blocked, peer)
			}
		}
		n, ok := o.cluster.Node(id)
		if !ok {
			continue
		}
		faultCommands.Inc()
		if err := n.PartitionFrom(ctx, blocked); err != nil {
			faultCommandFailures.Inc()
			failed = append(failed, NodeError{Node: id, Err: err})
		}
	}
	return failed
}

// PartitionRandomly computes a random split and applies it.
func (o *ChaosOrchestrator) PartitionRandomly(ctx context.Context) ([]string, []string, []NodeError) {
	sideA, sideB := o.RandomPartition()
	if len(sideA) == 0 {
		return sideA, sideB, nil
	}
	return sideA, sideB, o.ApplyPartition(ctx, sideA, sideB)
}

// IsolateRandom cuts one randomly chosen member off from all traffic.
func (o *ChaosOrchestrator) IsolateRandom(ctx context.Context) (string, []NodeError) {
	n := o.cluster.RandomNode(o.rand)
	plog.WithField("node", n.ID()).Info("isolating node")
	faultCommands.Inc()
	if err := n.Isolate(ctx); err != nil {
		faultCommandFailures.Inc()
		return n.ID(), []NodeError{{Node: n.ID(), Err: err}}
	}
	return n.ID(), nil
}

// ApplyLatency fans the latency setting out to every node.
func (o *ChaosOrchestrator) ApplyLatency(ctx context.Context, d time.Duration) []NodeError {
	plog.WithField("delay", d).Info("injecting latency")
	return o.fanOut(ctx, func(n NodeHandle) error {
		return n.SetLatency(ctx, d)
	})
}

// ApplyPacketLoss fans the loss probability out to every node.
func (o *ChaosOrchestrator) ApplyPacketLoss(ctx context.Context, probability float64) []NodeError {
	plog.WithField("probability", probability).Info("injecting packet loss")
	return o.fanOut(ctx, func(n NodeHandle) error {
		return n.SetPacketLoss(ctx, probability)
	})
}

// ApplyReordering toggles message reordering on every node.
func (o *ChaosOrchestrator) ApplyReordering(ctx context.Context, enabled bool) []NodeError {
	plog.WithField("enabled", enabled).Info("injecting message reordering")
	return o.fanOut(ctx, func(n NodeHandle) error {
		return n.SetReordering(ctx, enabled)
	})
}

// HealAll restores full connectivity everywhere. Safe to call regardless of
// what faults are in effect.
func (o *ChaosOrchestrator) HealAll(ctx context.Context) []NodeError {
	plog.Info("healing cluster")
	return o.fanOut(ctx, func(n NodeHandle) error {
		return n.Heal(ctx)
	})
}

func (o *ChaosOrchestrator) fanOut(ctx context.Context, op func(NodeHandle) error) []NodeError {
	failed := make([]NodeError, 0)
	for _, n := range o.cluster.Nodes() {
		faultCommands.Inc()
		if err := op(n); err != nil {
			faultCommandFailures.Inc()
			failed = append(failed, NodeError{Node: n.ID(), Err: err})
		}
	}
	return failed
}
