package raftchaos

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type faultKind int

const (
	faultQuiet faultKind = iota
	faultPartition
	faultBridge
	faultCyclic
	faultIsolate
	faultLatency
	faultLoss
	faultReorder
)

func (k faultKind) String() string {
	switch k {
	case faultPartition:
		return "partition"
	case faultBridge:
		return "bridge_partition"
	case faultCyclic:
		return "cyclic_partition"
	case faultIsolate:
		return "isolate"
	case faultLatency:
		return "latency"
	case faultLoss:
		return "packet_loss"
	case faultReorder:
		return "reordering"
	default:
		return "quiet"
	}
}

type faultStep struct {
	kind faultKind
}

// RunResult is the outcome of one chaos run.
type RunResult struct {
	RunID  string
	Report Report
	Stats  map[string]interface{}
}

// Scenario ties the harness together: it builds the cluster handles, runs
// the concurrent workload, steps through a randomly generated fault
// schedule, and checks the recorded history once everything has stopped.
type Scenario struct {
	config       *Config
	cluster      *Cluster
	orchestrator *ChaosOrchestrator
	history      *HistoryLog
	workload     *Workload
	schedule     *Queue[faultStep]
	rand         *rand.Rand
	terms        map[string]uint64

	stats map[string]interface{}
}

// NewScenario builds a scenario from config against an HTTP-reachable
// cluster.
func NewScenario(cfg *Config) (*Scenario, error) {
	cluster, err := NewHTTPCluster(cfg)
	if err != nil {
		return nil, err
	}
	return NewScenarioWithCluster(cfg, cluster)
}

// NewScenarioWithCluster builds a scenario over caller-supplied handles,
// e.g. in-memory nodes in tests.
func NewScenarioWithCluster(cfg *Config, cluster *Cluster) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Chaos.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	history := NewHistoryLog()
	s := &Scenario{
		config:       cfg,
		cluster:      cluster,
		orchestrator: NewChaosOrchestrator(cluster, r),
		history:      history,
		workload:     NewWorkload(cluster, history, cfg.Workload, seed),
		rand:         r,
		terms:        make(map[string]uint64),
		stats:        make(map[string]interface{}),
	}
	s.stats["fault_steps"] = 0
	s.stats["fault_failures"] = 0
	s.stats["term_changes"] = 0
	s.buildSchedule()
	if cfg.RecordHistory && cfg.RecordPath != "" {
		if err := os.MkdirAll(cfg.RecordPath, 0755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// buildSchedule generates the fault steps up front from the seeded random
// source, so a seeded run replays the same schedule. Roughly half the steps
// cut connectivity (partition or isolation), the rest degrade it or stay
// quiet.
func (s *Scenario) buildSchedule() {
	cfg := s.config.Chaos
	s.schedule = NewQueue[faultStep]()
	cut := make(map[int]bool)
	for _, i := range sample(intRange(0, cfg.Steps), (cfg.Steps+1)/2, s.rand) {
		cut[i] = true
	}
	cutKinds := []faultKind{faultPartition, faultIsolate}
	if s.cluster.Size() >= 3 {
		cutKinds = append(cutKinds, faultBridge)
	}
	if s.cluster.Size() >= 4 {
		cutKinds = append(cutKinds, faultCyclic)
	}
	for i := 0; i < cfg.Steps; i++ {
		if cut[i] {
			s.schedule.Push(faultStep{kind: cutKinds[s.rand.Intn(len(cutKinds))]})
			continue
		}
		kinds := []faultKind{faultQuiet}
		if cfg.Latency > 0 {
			kinds = append(kinds, faultLatency)
		}
		if cfg.PacketLoss > 0 {
			kinds = append(kinds, faultLoss)
		}
		if cfg.Reordering {
			kinds = append(kinds, faultReorder)
		}
		s.schedule.Push(faultStep{kind: kinds[s.rand.Intn(len(kinds))]})
	}
}

// Run executes the scenario: workload on, fault schedule stepped with a
// heal after every step, workload off, then the linearizability check over
// the finalized history.
func (s *Scenario) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.New().String()
	cfg := s.config
	plog.WithFields(logrus.Fields{
		"run_id": runID,
		"nodes":  s.cluster.Size(),
		"steps":  s.schedule.Size(),
	}).Info("starting chaos run")

	s.workload.Start(ctx)
	s.probeTerms(ctx)
	deadline := time.NewTimer(cfg.Workload.Duration.Std())
	defer deadline.Stop()

ScheduleLoop:
	for s.schedule.Size() > 0 {
		select {
		case <-ctx.Done():
			break ScheduleLoop
		case <-deadline.C:
			plog.Info("workload duration reached, ending fault schedule")
			break ScheduleLoop
		default:
		}
		step, _ := s.schedule.Pop()
		s.applyStep(ctx, step)
		s.stats["fault_steps"] = s.stats["fault_steps"].(int) + 1
		sleepCtx(ctx, cfg.Chaos.Interval.Std())
		s.collectFailures(s.orchestrator.HealAll(ctx))
		s.probeTerms(ctx)
	}

	// Let the cluster settle fully healed before finalizing the history.
	s.collectFailures(s.orchestrator.HealAll(ctx))
	sleepCtx(ctx, cfg.Chaos.Interval.Std())
	s.workload.Stop()

	entries := s.history.Snapshot()
	s.stats["ops_recorded"] = len(entries)
	report := CheckLinearizability(entries)

	if cfg.RecordHistory && cfg.RecordPath != "" {
		filePath := filepath.Join(cfg.RecordPath, runID+".json")
		if err := s.history.WriteFile(filePath); err != nil {
			plog.WithError(err).Warn("failed to record history")
		}
	}
	plog.WithFields(logrus.Fields{
		"run_id":     runID,
		"ops":        len(entries),
		"violations": len(report.Violations),
	}).Info("chaos run finished")
	return &RunResult{
		RunID:  runID,
		Report: report,
		Stats:  s.stats,
	}, nil
}

func (s *Scenario) applyStep(ctx context.Context, step faultStep) {
	plog.WithField("fault", step.kind.String()).Info("applying fault step")
	cfg := s.config.Chaos
	switch step.kind {
	case faultPartition:
		_, _, failed := s.orchestrator.PartitionRandomly(ctx)
		s.collectFailures(failed)
	case faultBridge:
		_, _, _, failed := s.orchestrator.BridgePartition(ctx)
		s.collectFailures(failed)
	case faultCyclic:
		s.collectFailures(s.orchestrator.CyclicPartition(ctx))
	case faultIsolate:
		_, failed := s.orchestrator.IsolateRandom(ctx)
		s.collectFailures(failed)
	case faultLatency:
		s.collectFailures(s.orchestrator.ApplyLatency(ctx, cfg.Latency.Std()))
	case faultLoss:
		s.collectFailures(s.orchestrator.ApplyPacketLoss(ctx, cfg.PacketLoss))
	case faultReorder:
		s.collectFailures(s.orchestrator.ApplyReordering(ctx, true))
	case faultQuiet:
	}
}

func (s *Scenario) collectFailures(failed []NodeError) {
	for _, f := range failed {
		s.stats["fault_failures"] = s.stats["fault_failures"].(int) + 1
		plog.WithError(f.Err).WithField("node", f.Node).Warn("fault command failed")
	}
}

// probeTerms polls every member's term to surface elections in the log.
// Unreachable members are expected mid-fault and skipped.
func (s *Scenario) probeTerms(ctx context.Context) {
	for _, n := range s.cluster.Nodes() {
		term, err := n.CurrentTerm(ctx)
		if err != nil {
			continue
		}
		if prev, ok := s.terms[n.ID()]; ok && term != prev {
			s.stats["term_changes"] = s.stats["term_changes"].(int) + 1
			plog.WithFields(logrus.Fields{
				"node": n.ID(),
				"from": prev,
				"to":   term,
			}).Info("term changed")
		}
		s.terms[n.ID()] = term
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
