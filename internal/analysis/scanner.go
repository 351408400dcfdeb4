package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// ScannerState is one node of the scanner state machine of spec.md §4.4.
type ScannerState string

const (
	ScannerInitialized      ScannerState = "INITIALIZED"
	ScannerSetupPending     ScannerState = "SETUP_PENDING"
	ScannerSetupComplete    ScannerState = "SETUP_COMPLETE"
	ScannerScanPending      ScannerState = "SCAN_PENDING"
	ScannerScanning         ScannerState = "SCANNING"
	ScannerScanComplete     ScannerState = "SCAN_COMPLETE"
	ScannerTeardownPending  ScannerState = "TEARDOWN_PENDING"
	ScannerTeardownComplete ScannerState = "TEARDOWN_COMPLETE"
	ScannerError            ScannerState = "ERROR"
)

// legalEdges is the happy-path graph plus ERROR, reachable from every
// non-terminal state except INITIALIZED, grounded on the teacher's internal/rules/compiler.go
// compiled-state caching pattern generalized into an explicit transition
// table instead of an implicit cache-valid/invalid flag.
var legalEdges = map[ScannerState]map[ScannerState]bool{
	ScannerInitialized:      {ScannerSetupPending: true},
	ScannerSetupPending:     {ScannerSetupComplete: true, ScannerError: true},
	ScannerSetupComplete:    {ScannerScanPending: true, ScannerTeardownPending: true, ScannerError: true},
	ScannerScanPending:      {ScannerScanning: true, ScannerError: true},
	ScannerScanning:         {ScannerScanComplete: true, ScannerError: true},
	ScannerScanComplete:     {ScannerScanPending: true, ScannerTeardownPending: true, ScannerError: true},
	ScannerTeardownPending:  {ScannerTeardownComplete: true, ScannerError: true},
	ScannerTeardownComplete: {},
	ScannerError:            {ScannerTeardownPending: true},
}

// ScannerStateMachine tracks one scanner's lifecycle state under a mutex.
type ScannerStateMachine struct {
	mu    sync.Mutex
	state ScannerState
}

// NewScannerStateMachine constructs a machine in its initial state.
func NewScannerStateMachine() *ScannerStateMachine {
	return &ScannerStateMachine{state: ScannerInitialized}
}

// State returns the current state.
func (m *ScannerStateMachine) State() ScannerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next if the edge is legal, else returns a
// KindLifecycle error and leaves the state unchanged.
func (m *ScannerStateMachine) Transition(next ScannerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !legalEdges[m.state][next] {
		return models.NewError(models.KindLifecycle, "scanner_transition", models.ErrLifecycle)
	}
	m.state = next
	return nil
}

// Schedule is one {start, end, interval} window a regular scanner runs
// within, offsets measured from session open.
type Schedule struct {
	Start    time.Duration
	End      time.Duration
	Interval string
}

// ScanResult is what a Scan call returns: symbols to add or remove from
// the session universe (spec.md §4.5).
type ScanResult struct {
	AddSymbols    []string
	RemoveSymbols []string
}

// Scanner is the user-supplied contract of spec.md §4.4.
type Scanner interface {
	Name() string
	IsPreSession() bool
	Schedules() []Schedule
	Setup(ctx context.Context) error
	Scan(ctx context.Context) (ScanResult, error)
	Teardown(ctx context.Context) error
}

type scannerRuntime struct {
	scanner Scanner
	state   *ScannerStateMachine
}

// ScannerManager runs every registered Scanner through its state machine.
// Scans are always invoked synchronously by the caller (spec.md §4
// "Scanners are invoked synchronously on the Coordinator thread, so that
// in backtest mode the simulated clock naturally pauses during a scan");
// whether that call happens inline or from a goroutine is the
// Coordinator's decision based on session mode, not this manager's.
type ScannerManager struct {
	mu       sync.Mutex
	runtimes map[string]*scannerRuntime

	onSymbolChange func(add, remove []string)
}

// NewScannerManager constructs an empty ScannerManager.
func NewScannerManager() *ScannerManager {
	return &ScannerManager{runtimes: make(map[string]*scannerRuntime)}
}

// SetOnSymbolChange wires the callback invoked whenever a scan adds or
// removes symbols, mirroring the teacher's SetOnBarFinal callback-wiring
// idiom.
func (m *ScannerManager) SetOnSymbolChange(fn func(add, remove []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSymbolChange = fn
}

// Register adds a scanner in its initial state.
func (m *ScannerManager) Register(s Scanner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runtimes[s.Name()] = &scannerRuntime{scanner: s, state: NewScannerStateMachine()}
}

// RunPreSession runs every pre-session scanner once, tearing down
// pre-session-only scanners immediately afterward (spec.md §4.4).
func (m *ScannerManager) RunPreSession(ctx context.Context) {
	m.mu.Lock()
	runtimes := make([]*scannerRuntime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		if rt.scanner.IsPreSession() {
			runtimes = append(runtimes, rt)
		}
	}
	m.mu.Unlock()

	for _, rt := range runtimes {
		m.runOnce(ctx, rt)
		if len(rt.scanner.Schedules()) == 0 {
			m.teardown(ctx, rt)
		}
	}
}

// RunScheduled runs every regular scanner whose schedule window contains
// elapsed (time since session open).
func (m *ScannerManager) RunScheduled(ctx context.Context, elapsed time.Duration) {
	m.mu.Lock()
	runtimes := make([]*scannerRuntime, 0)
	for _, rt := range m.runtimes {
		for _, sched := range rt.scanner.Schedules() {
			if elapsed >= sched.Start && elapsed < sched.End {
				runtimes = append(runtimes, rt)
				break
			}
		}
	}
	m.mu.Unlock()

	for _, rt := range runtimes {
		m.runOnce(ctx, rt)
	}
}

// TeardownAll tears down every scanner that has not already completed
// teardown, for session shutdown.
func (m *ScannerManager) TeardownAll(ctx context.Context) {
	m.mu.Lock()
	runtimes := make([]*scannerRuntime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		if rt.state.State() != ScannerTeardownComplete {
			runtimes = append(runtimes, rt)
		}
	}
	m.mu.Unlock()

	for _, rt := range runtimes {
		m.teardown(ctx, rt)
	}
}

func (m *ScannerManager) runOnce(ctx context.Context, rt *scannerRuntime) {
	if rt.state.State() == ScannerInitialized {
		if err := rt.state.Transition(ScannerSetupPending); err != nil {
			logger.Warn("analysis: scanner transition failed", logger.ErrorField(err))
			return
		}
		if err := rt.scanner.Setup(ctx); err != nil {
			rt.state.Transition(ScannerError)
			logger.Warn("analysis: scanner setup failed", logger.String("scanner", rt.scanner.Name()), logger.ErrorField(err))
			return
		}
		if err := rt.state.Transition(ScannerSetupComplete); err != nil {
			logger.Warn("analysis: scanner transition failed", logger.ErrorField(err))
			return
		}
	}

	if err := rt.state.Transition(ScannerScanPending); err != nil {
		logger.Warn("analysis: scanner transition failed", logger.ErrorField(err))
		return
	}
	if err := rt.state.Transition(ScannerScanning); err != nil {
		logger.Warn("analysis: scanner transition failed", logger.ErrorField(err))
		return
	}

	result, err := rt.scanner.Scan(ctx)
	if err != nil {
		rt.state.Transition(ScannerError)
		logger.Warn("analysis: scan failed", logger.String("scanner", rt.scanner.Name()), logger.ErrorField(err))
		return
	}
	if err := rt.state.Transition(ScannerScanComplete); err != nil {
		logger.Warn("analysis: scanner transition failed", logger.ErrorField(err))
		return
	}

	if (len(result.AddSymbols) > 0 || len(result.RemoveSymbols) > 0) && m.onSymbolChange != nil {
		m.onSymbolChange(result.AddSymbols, result.RemoveSymbols)
	}
}

func (m *ScannerManager) teardown(ctx context.Context, rt *scannerRuntime) {
	if err := rt.state.Transition(ScannerTeardownPending); err != nil {
		return
	}
	if err := rt.scanner.Teardown(ctx); err != nil {
		logger.Warn("analysis: scanner teardown failed", logger.String("scanner", rt.scanner.Name()), logger.ErrorField(err))
	}
	rt.state.Transition(ScannerTeardownComplete)
}
