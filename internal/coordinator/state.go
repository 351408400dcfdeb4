package coordinator

import "sync/atomic"

// SystemState is the Coordinator's run state (spec.md §4.1 "Pause/resume
// and system state"). Mode changes are only legal while Stopped.
type SystemState int32

const (
	StateStopped SystemState = iota
	StateRunning
	StatePaused
)

func (s SystemState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// systemState is an atomic wrapper so the merge-yield goroutine can poll
// it without a mutex round-trip on every iteration.
type systemState struct {
	v atomic.Int32
}

func (s *systemState) Load() SystemState      { return SystemState(s.v.Load()) }
func (s *systemState) Store(v SystemState)    { s.v.Store(int32(v)) }
func (s *systemState) CAS(old, new SystemState) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// SymbolStatus is one entry of GetState()'s per-symbol provisioning
// snapshot.
type SymbolStatus struct {
	Symbol                         string
	MeetsSessionConfigRequirements bool
	AddedBy                        string
	AutoProvisioned                bool
	UpgradedFromAdhoc              bool
	Pending                        bool
}

// Snapshot is the operational view GetState() returns: symbol count,
// per-symbol provisioning status, clock position, and ready-chain health
// — grounded on the teacher's ScanLoopStats struct
// (internal/scanner/scan_loop.go), generalized from scan-cycle counters
// to session-wide counters.
type Snapshot struct {
	State             string
	ClockTime         string
	ReadyMode         string
	Symbols           []SymbolStatus
	ProcessorOverruns int64
	MergeQueueDepth    int
}
