package raftchaos

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNetwork marks transport-level failures: timeouts, refused connections
// and requests explicitly dropped by an injected fault. During a chaos run
// these are expected outcomes, callers check for them with errors.Is and
// carry on against the reachable subset of the cluster.
var ErrNetwork = errors.New("network error")

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// NodeHandle is the single point of contact for one cluster member. The
// client operations reach the member's data endpoint, everything else goes
// to its management endpoint. Fault-injection calls are fire-and-forget:
// they request a target state and return once the command round-trip is
// done, without waiting for the fault to settle.
type NodeHandle interface {
	// ID returns the member's unique identifier.
	ID() string

	// Set issues a write and reports whether the node acknowledged it.
	Set(ctx context.Context, key, value string) (bool, error)
	// Get issues a read. A key that was never written reads as "".
	Get(ctx context.Context, key string) (string, error)
	// CurrentTerm returns the member's current election term.
	CurrentTerm(ctx context.Context) (uint64, error)

	// Isolate asks the node to drop all inbound and outbound traffic.
	Isolate(ctx context.Context) error
	// PartitionFrom asks the node to drop traffic to and from exactly the
	// listed peers, leaving all other connectivity untouched.
	PartitionFrom(ctx context.Context, peers []string) error
	// Heal restores full connectivity. Idempotent.
	Heal(ctx context.Context) error
	// SetLatency delays all outbound traffic by approximately d.
	SetLatency(ctx context.Context, d time.Duration) error
	// SetPacketLoss drops outbound messages independently with the given
	// probability. The probability must lie in [0, 1].
	SetPacketLoss(ctx context.Context, probability float64) error
	// SetReordering toggles relaxed in-order delivery on the node's
	// transport. The degree of reordering is up to the node under test.
	SetReordering(ctx context.Context, enabled bool) error
}
