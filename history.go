package raftchaos

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/VictoriaMetrics/metrics"
)

// OpType identifies the kind of client operation recorded in the history.
type OpType string

const (
	OpSet OpType = "SET"
	OpGet OpType = "GET"
)

var historyAppends = metrics.GetOrCreateCounter("raftchaos_history_entries_total")

// HistoryEntry records one completed client operation. Start and End are
// wall-clock seconds taken by the calling client immediately before issuing
// the request and immediately after the response. Both come from the test
// driver's clock, so intervals across entries are comparable.
//
// Timestamp carries the legacy single-timestamp shape. Entries using it are
// normalized to Start = End = Timestamp before checking.
type HistoryEntry struct {
	Op        OpType  `json:"op_type"`
	Key       string  `json:"key"`
	Value     string  `json:"value"`
	Start     float64 `json:"start_time"`
	End       float64 `json:"end_time"`
	Timestamp float64 `json:"timestamp,omitempty"`
	Node      string  `json:"node_id"`
}

// normalize resolves the legacy shape and reports whether the entry is well
// formed. Malformed entries come from instrumentation bugs in the driver,
// not from the cluster, so callers skip them instead of failing the run.
func (e HistoryEntry) normalize() (HistoryEntry, bool) {
	if e.Start == 0 && e.End == 0 && e.Timestamp != 0 {
		e.Start = e.Timestamp
		e.End = e.Timestamp
		e.Timestamp = 0
	}
	if e.End < e.Start {
		return e, false
	}
	if e.Op != OpSet && e.Op != OpGet {
		return e, false
	}
	return e, true
}

// HistoryLog is the append-only record of every completed client operation
// in a run. Appends are serialized internally, so concurrent workload
// goroutines share one log. The checker consumes a Snapshot taken after all
// activity has stopped.
type HistoryLog struct {
	mu      sync.Mutex
	entries *List[HistoryEntry]
}

func NewHistoryLog() *HistoryLog {
	return &HistoryLog{
		entries: NewList[HistoryEntry](),
	}
}

// Append records a completed operation. Operations that timed out or failed
// must not be appended: an operation that never got a response cannot be
// asserted against.
func (h *HistoryLog) Append(e HistoryEntry) {
	h.mu.Lock()
	h.entries.Append(e)
	h.mu.Unlock()
	historyAppends.Inc()
}

// Size returns the number of recorded operations.
func (h *HistoryLog) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Size()
}

// Snapshot returns a copy of the recorded history. The copy is detached
// from the log, later appends do not show up in it.
func (h *HistoryLog) Snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, 0, h.entries.Size())
	out = append(out, h.entries.Iter()...)
	return out
}

// WriteFile dumps the history as indented JSON, for offline inspection of a
// finished run.
func (h *HistoryLog) WriteFile(path string) error {
	data, err := json.MarshalIndent(h.Snapshot(), "", "\t")
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	writer := bufio.NewWriter(file)
	if _, err := writer.Write(data); err != nil {
		return err
	}
	return writer.Flush()
}
