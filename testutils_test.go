package raftchaos

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

func init() {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	SetLogger(quiet)
}

// memStore is a shared register map. Reads and writes go through one mutex,
// so histories produced against it are linearizable by construction.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) set(key, value string) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

func (s *memStore) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

// fakeNode implements NodeHandle in memory and records every management
// command it receives.
type fakeNode struct {
	id    string
	store *memStore

	mu         sync.Mutex
	isolated   bool
	partitions []string
	latency    time.Duration
	loss       float64
	reordering bool
	heals      int
	term       uint64

	// failMgmt makes every management call fail with a network error.
	failMgmt bool
	// failClient makes every Set and Get fail with a network error.
	failClient bool
	// staleReads makes every Get return a value nobody ever wrote.
	staleReads bool
}

var _ NodeHandle = (*fakeNode)(nil)

func newFakeNode(id string, store *memStore) *fakeNode {
	return &fakeNode{id: id, store: store, term: 1}
}

func (f *fakeNode) ID() string { return f.id }

func (f *fakeNode) Set(ctx context.Context, key, value string) (bool, error) {
	if f.failClient {
		return false, errors.Mark(errors.Newf("node %s unreachable", f.id), ErrNetwork)
	}
	f.store.set(key, value)
	return true, nil
}

func (f *fakeNode) Get(ctx context.Context, key string) (string, error) {
	if f.failClient {
		return "", errors.Mark(errors.Newf("node %s unreachable", f.id), ErrNetwork)
	}
	if f.staleReads {
		return "stale-" + key, nil
	}
	return f.store.get(key), nil
}

func (f *fakeNode) CurrentTerm(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.term, nil
}

func (f *fakeNode) mgmt(apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMgmt {
		return errors.Mark(errors.Newf("node %s unreachable", f.id), ErrNetwork)
	}
	apply()
	return nil
}

func (f *fakeNode) Isolate(ctx context.Context) error {
	return f.mgmt(func() { f.isolated = true })
}

func (f *fakeNode) PartitionFrom(ctx context.Context, peers []string) error {
	return f.mgmt(func() { f.partitions = append([]string{}, peers...) })
}

func (f *fakeNode) Heal(ctx context.Context) error {
	return f.mgmt(func() {
		f.isolated = false
		f.partitions = nil
		f.latency = 0
		f.loss = 0
		f.reordering = false
		f.heals++
	})
}

func (f *fakeNode) SetLatency(ctx context.Context, d time.Duration) error {
	return f.mgmt(func() { f.latency = d })
}

func (f *fakeNode) SetPacketLoss(ctx context.Context, probability float64) error {
	if probability < 0 || probability > 1 {
		return errors.Newf("packet loss probability %f outside [0, 1]", probability)
	}
	return f.mgmt(func() { f.loss = probability })
}

func (f *fakeNode) SetReordering(ctx context.Context, enabled bool) error {
	return f.mgmt(func() { f.reordering = enabled })
}

func fakeCluster(store *memStore, ids ...string) (*Cluster, []*fakeNode) {
	fakes := make([]*fakeNode, 0, len(ids))
	handles := make([]NodeHandle, 0, len(ids))
	for _, id := range ids {
		f := newFakeNode(id, store)
		fakes = append(fakes, f)
		handles = append(handles, f)
	}
	c, err := NewCluster(handles)
	if err != nil {
		panic(err)
	}
	return c, fakes
}
