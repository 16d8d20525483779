package raftchaos

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/goutils/syncutil"
)

var clientOps = metrics.GetOrCreateCounter("raftchaos_client_ops_total")
var clientOpFailures = metrics.GetOrCreateCounter("raftchaos_client_op_failures_total")

// Workload drives concurrent reads and writes against random cluster
// members while faults are being injected. Each completed operation is
// appended to the shared HistoryLog with its own wall-clock interval.
// Failed or timed-out operations are counted but never recorded, an
// operation without a response cannot be asserted against.
type Workload struct {
	cluster *Cluster
	history *HistoryLog
	cfg     WorkloadConfig
	seed    int64
	stopper *syncutil.Stopper
	seq     atomic.Uint64
}

func NewWorkload(cluster *Cluster, history *HistoryLog, cfg WorkloadConfig, seed int64) *Workload {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Workload{
		cluster: cluster,
		history: history,
		cfg:     cfg,
		seed:    seed,
		stopper: syncutil.NewStopper(),
	}
}

// Start launches the client goroutines. They run until Stop is called or
// ctx is cancelled.
func (w *Workload) Start(ctx context.Context) {
	for i := 0; i < w.cfg.Clients; i++ {
		clientID := i
		w.stopper.RunWorker(func() {
			w.clientLoop(ctx, clientID)
		})
	}
}

// Stop halts the client goroutines and waits for them to drain.
func (w *Workload) Stop() {
	w.stopper.Stop()
}

func (w *Workload) clientLoop(ctx context.Context, clientID int) {
	// rand.Rand is not goroutine safe, each client owns one.
	r := rand.New(rand.NewSource(w.seed + int64(clientID)))
	for {
		select {
		case <-w.stopper.ShouldStop():
			return
		case <-ctx.Done():
			return
		default:
		}
		node := w.cluster.RandomNode(r)
		key := fmt.Sprintf("key-%d", r.Intn(w.cfg.Keys))
		if r.Intn(2) == 0 {
			w.doSet(ctx, node, clientID, key)
		} else {
			w.doGet(ctx, node, key)
		}
		time.Sleep(time.Duration(r.Intn(20)) * time.Millisecond)
	}
}

func (w *Workload) doSet(ctx context.Context, node NodeHandle, clientID int, key string) {
	value := fmt.Sprintf("c%d-%d", clientID, w.seq.Add(1))
	start := wallSeconds()
	ok, err := node.Set(ctx, key, value)
	end := wallSeconds()
	clientOps.Inc()
	if err != nil || !ok {
		// Expected under chaos. The write may or may not have taken
		// effect, but without an acknowledgement it is not part of the
		// observable history.
		clientOpFailures.Inc()
		return
	}
	w.history.Append(HistoryEntry{
		Op:    OpSet,
		Key:   key,
		Value: value,
		Start: start,
		End:   end,
		Node:  node.ID(),
	})
}

func (w *Workload) doGet(ctx context.Context, node NodeHandle, key string) {
	start := wallSeconds()
	value, err := node.Get(ctx, key)
	end := wallSeconds()
	clientOps.Inc()
	if err != nil {
		clientOpFailures.Inc()
		return
	}
	w.history.Append(HistoryEntry{
		Op:    OpGet,
		Key:   key,
		Value: value,
		Start: start,
		End:   end,
		Node:  node.ID(),
	})
}
