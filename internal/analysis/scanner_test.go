package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

func TestScannerStateMachineHappyPath(t *testing.T) {
	m := NewScannerStateMachine()
	steps := []ScannerState{
		ScannerSetupPending, ScannerSetupComplete, ScannerScanPending,
		ScannerScanning, ScannerScanComplete, ScannerTeardownPending, ScannerTeardownComplete,
	}
	for _, next := range steps {
		require.NoError(t, m.Transition(next), "transition to %s", next)
	}
	assert.Equal(t, ScannerTeardownComplete, m.State())
}

func TestScannerStateMachineRejectsIllegalEdge(t *testing.T) {
	m := NewScannerStateMachine()
	err := m.Transition(ScannerScanning)
	require.Error(t, err, "expected an error skipping straight to SCANNING")
	assert.True(t, errors.Is(err, models.ErrLifecycle), "expected a lifecycle error, got %v", err)
	assert.Equal(t, ScannerInitialized, m.State(), "expected state unchanged after a rejected transition")
}

type fakeScanner struct {
	name        string
	preSession  bool
	schedules   []Schedule
	scanResult  ScanResult
	setupCalled bool
}

func (f *fakeScanner) Name() string          { return f.name }
func (f *fakeScanner) IsPreSession() bool    { return f.preSession }
func (f *fakeScanner) Schedules() []Schedule { return f.schedules }
func (f *fakeScanner) Setup(ctx context.Context) error {
	f.setupCalled = true
	return nil
}
func (f *fakeScanner) Scan(ctx context.Context) (ScanResult, error) { return f.scanResult, nil }
func (f *fakeScanner) Teardown(ctx context.Context) error           { return nil }

func TestScannerManagerPreSessionOnlyTearsDownImmediately(t *testing.T) {
	m := NewScannerManager()
	s := &fakeScanner{name: "gap-up", preSession: true, scanResult: ScanResult{AddSymbols: []string{"TSLA"}}}
	m.Register(s)

	var added []string
	m.SetOnSymbolChange(func(add, remove []string) { added = add })

	m.RunPreSession(context.Background())

	assert.True(t, s.setupCalled, "expected setup to be called")
	require.Len(t, added, 1)
	assert.Equal(t, "TSLA", added[0])
	assert.Equal(t, ScannerTeardownComplete, m.runtimes["gap-up"].state.State(), "expected pre-session-only scanner torn down immediately")
}

func TestScannerManagerRegularSchedule(t *testing.T) {
	m := NewScannerManager()
	s := &fakeScanner{
		name:      "momentum",
		schedules: []Schedule{{Start: 0, End: 30 * time.Minute, Interval: "1m"}},
	}
	m.Register(s)

	m.RunScheduled(context.Background(), 10*time.Minute)
	assert.Equal(t, ScannerScanComplete, m.runtimes["momentum"].state.State(), "expected scan complete within window")

	// A second scan within the same window cycles SCAN_COMPLETE -> SCAN_PENDING -> ... again.
	m.RunScheduled(context.Background(), 20*time.Minute)
	assert.Equal(t, ScannerScanComplete, m.runtimes["momentum"].state.State(), "expected scan complete on second pass")

	// Outside the window, nothing runs.
	m.RunScheduled(context.Background(), time.Hour)
	assert.Equal(t, ScannerScanComplete, m.runtimes["momentum"].state.State(), "expected state unchanged outside the schedule window")
}
