package raftchaos

import (
	"sort"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"
)

var safetyViolations = metrics.GetOrCreateCounter("raftchaos_safety_violations_total")

// Violation describes a read that cannot be explained by any valid
// linearization of the writes recorded for its key.
type Violation struct {
	Key        string   `json:"key"`
	Node       string   `json:"node_id"`
	ReadStart  float64  `json:"read_start"`
	ReadEnd    float64  `json:"read_end"`
	Got        string   `json:"got"`
	Expected   string   `json:"expected"`
	Candidates []string `json:"candidates"`
}

// Report is the outcome of checking one history. It is plain data so a
// reporting layer can render it however it wants.
type Report struct {
	Violations []Violation `json:"violations"`
	Reads      int         `json:"reads"`
	Writes     int         `json:"writes"`
	// Skipped counts malformed entries dropped before checking. Malformed
	// history means a driver instrumentation bug, not a consensus bug.
	Skipped int `json:"skipped"`
}

// Passed reports whether the history is consistent with linearizability.
func (r Report) Passed() bool {
	return len(r.Violations) == 0
}

// CheckLinearizability verifies that every recorded read is consistent with
// some valid linearization of the recorded writes for the same key.
//
// For a read R the expected value is the value of the last write that
// completed strictly before R started, or "" when no write did. A read is
// accepted when it observed the expected value, or the value of any write
// whose interval overlaps R's (either could have taken effect first).
// Everything else is a violation.
//
// The check is a pure function of the history: running it twice over the
// same snapshot yields the same report.
func CheckLinearizability(entries []HistoryEntry) Report {
	report := Report{Violations: make([]Violation, 0)}
	byKey := make(map[string][]HistoryEntry)
	keys := make([]string, 0)
	for _, e := range entries {
		e, ok := e.normalize()
		if !ok {
			report.Skipped++
			plog.WithFields(logrus.Fields{
				"op":   string(e.Op),
				"key":  e.Key,
				"node": e.Node,
			}).Warn("skipping malformed history entry")
			continue
		}
		if _, seen := byKey[e.Key]; !seen {
			keys = append(keys, e.Key)
		}
		byKey[e.Key] = append(byKey[e.Key], e)
	}
	sort.Strings(keys)

	for _, key := range keys {
		writes := make([]HistoryEntry, 0)
		reads := make([]HistoryEntry, 0)
		for _, e := range byKey[key] {
			if e.Op == OpSet {
				writes = append(writes, e)
			} else {
				reads = append(reads, e)
			}
		}
		report.Writes += len(writes)
		report.Reads += len(reads)

		for _, r := range reads {
			expected := ""
			found := false
			bestEnd := 0.0
			for _, w := range writes {
				if w.End < r.Start && (!found || w.End >= bestEnd) {
					// Ties on end time go to the later entry in snapshot
					// order, keeping the pick deterministic per snapshot.
					expected = w.Value
					bestEnd = w.End
					found = true
				}
			}
			if r.Value == expected {
				continue
			}

			candidates := map[string]bool{expected: true}
			for _, w := range writes {
				if w.Start < r.End && w.End > r.Start {
					candidates[w.Value] = true
				}
			}
			if candidates[r.Value] {
				continue
			}

			candidateList := make([]string, 0, len(candidates))
			for v := range candidates {
				candidateList = append(candidateList, v)
			}
			sort.Strings(candidateList)
			v := Violation{
				Key:        key,
				Node:       r.Node,
				ReadStart:  r.Start,
				ReadEnd:    r.End,
				Got:        r.Value,
				Expected:   expected,
				Candidates: candidateList,
			}
			report.Violations = append(report.Violations, v)
			safetyViolations.Inc()
			plog.WithFields(logrus.Fields{
				"key":        key,
				"node":       r.Node,
				"read_start": r.Start,
				"read_end":   r.End,
				"got":        r.Value,
				"expected":   expected,
				"candidates": candidateList,
			}).Error("linearizability violation")
		}
	}

	plog.Infof("METRIC: SafetyViolations=%d", len(report.Violations))
	return report
}
