package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rdm/internal/distributor"
	"github.com/elys-network/rdm/internal/metrics"
	"github.com/elys-network/rdm/internal/types"
)

type mockTreasury struct{ mock.Mock }

func (m *mockTreasury) GetTreasuryBalance(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

type mockSnapshot struct{ mock.Mock }

func (m *mockSnapshot) FetchHolders(ctx context.Context) ([]types.HolderRecord, error) {
	args := m.Called(ctx)
	holders, _ := args.Get(0).([]types.HolderRecord)
	return holders, args.Error(1)
}

type fakeRunner struct {
	mu       sync.Mutex
	requests []distributor.CycleRequest
	epochs   []string
	err      error
}

func (f *fakeRunner) RunCycle(ctx context.Context, req distributor.CycleRequest) (*types.CycleSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.epochs = append(f.epochs, types.EpochFromContext(ctx, time.Time{}))
	if f.err != nil {
		return nil, f.err
	}
	return &types.CycleSummary{CycleID: "c", CycleNumber: req.CycleNumber, Epoch: req.Epoch, TotalPool: req.Pool}, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type sinkFunc func(ctx context.Context, s *types.CycleSummary) error

func (f sinkFunc) SaveCycleSummary(ctx context.Context, s *types.CycleSummary) error { return f(ctx, s) }

type counterFunc func(ctx context.Context) (int, error)

func (f counterFunc) NextCycleNumber(ctx context.Context) (int, error) { return f(ctx) }

var holders = []types.HolderRecord{
	{Wallet: "w1", Tier: types.TierGold},
	{Wallet: "w2", Tier: types.TierPlatinum},
}

func monday() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }

func newScheduler(t *testing.T, treasury TreasuryReader, snapshot SnapshotProvider, runner CycleRunner, opts ...func(*Config)) *Scheduler {
	t.Helper()
	cfg := Config{
		Treasury:           treasury,
		Snapshot:           snapshot,
		Runner:             runner,
		RewardPool:         1000,
		MinTreasuryBalance: 0.5,
		Now:                monday,
	}
	for _, o := range opts {
		o(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestTickRunsCycle(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(5000.0, nil).Once()
	snapshot := &mockSnapshot{}
	snapshot.On("FetchHolders", mock.MatchedBy(func(ctx context.Context) bool {
		return types.EpochFromContext(ctx, time.Time{}) == "2026-W43"
	})).Return(holders, nil).Once()
	runner := &fakeRunner{}

	var saved *types.CycleSummary
	m := metrics.New()
	s := newScheduler(t, treasury, snapshot, runner, func(c *Config) {
		c.Counter = counterFunc(func(context.Context) (int, error) { return 41, nil })
		c.Sink = sinkFunc(func(_ context.Context, s *types.CycleSummary) error { saved = s; return nil })
		c.Metrics = m
	})

	summary, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, 1000.0, req.Pool)
	assert.Equal(t, 41, req.CycleNumber)
	assert.Equal(t, "2026-W43", req.Epoch)
	assert.Equal(t, holders, req.Holders)
	assert.Equal(t, []string{"2026-W43"}, runner.epochs)
	assert.Same(t, summary, saved)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP rdm_treasury_balance Last observed treasury balance.
# TYPE rdm_treasury_balance gauge
rdm_treasury_balance 5000
`), "rdm_treasury_balance"))

	treasury.AssertExpectations(t)
	snapshot.AssertExpectations(t)
}

func TestTickGatedByMinimumBalance(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(0.4, nil)
	snapshot := &mockSnapshot{}
	runner := &fakeRunner{}
	s := newScheduler(t, treasury, snapshot, runner, func(c *Config) { c.RewardPool = 0.1 })

	summary, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTreasuryGated)
	assert.Nil(t, summary)
	assert.Zero(t, runner.calls())
	snapshot.AssertNotCalled(t, "FetchHolders", mock.Anything)
}

func TestTickGatedWhenPoolExceedsBalance(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(999.0, nil)
	snapshot := &mockSnapshot{}
	runner := &fakeRunner{}
	m := metrics.New()
	s := newScheduler(t, treasury, snapshot, runner, func(c *Config) { c.Metrics = m })

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTreasuryGated)
	assert.Zero(t, runner.calls())
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP rdm_cycles_total Distribution cycles by result (completed, rejected, gated, error).
# TYPE rdm_cycles_total counter
rdm_cycles_total{result="gated"} 1
`), "rdm_cycles_total"))
}

func TestTickTreasuryError(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(0.0, errors.New("unavailable"))
	runner := &fakeRunner{}
	s := newScheduler(t, treasury, &mockSnapshot{}, runner)

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTreasuryUnavailable)
	assert.Zero(t, runner.calls())
}

func TestTickSnapshotUnavailable(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(5000.0, nil)
	snapshot := &mockSnapshot{}
	cause := errors.New("db down")
	snapshot.On("FetchHolders", mock.Anything).Return(nil, cause)
	runner := &fakeRunner{}
	s := newScheduler(t, treasury, snapshot, runner)

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, runner.calls())
}

func TestTickCounterError(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(5000.0, nil)
	snapshot := &mockSnapshot{}
	snapshot.On("FetchHolders", mock.Anything).Return(holders, nil)
	runner := &fakeRunner{}
	s := newScheduler(t, treasury, snapshot, runner, func(c *Config) {
		c.Counter = counterFunc(func(context.Context) (int, error) { return 0, errors.New("locked") })
	})

	_, err := s.Tick(context.Background())
	require.Error(t, err)
	assert.Zero(t, runner.calls())
}

func TestTickRunnerError(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(5000.0, nil)
	snapshot := &mockSnapshot{}
	snapshot.On("FetchHolders", mock.Anything).Return([]types.HolderRecord{}, nil)
	cause := errors.New("no holders")
	runner := &fakeRunner{err: cause}
	s := newScheduler(t, treasury, snapshot, runner)

	summary, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, summary)
}

func TestTickReportFailureKeepsSummary(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(5000.0, nil)
	snapshot := &mockSnapshot{}
	snapshot.On("FetchHolders", mock.Anything).Return(holders, nil)
	s := newScheduler(t, treasury, snapshot, &fakeRunner{}, func(c *Config) {
		c.Sink = sinkFunc(func(context.Context, *types.CycleSummary) error { return errors.New("disk full") })
	})

	summary, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrReportFailed)
	assert.NotNil(t, summary)
}

func TestLocalCycleCounter(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(5000.0, nil)
	snapshot := &mockSnapshot{}
	snapshot.On("FetchHolders", mock.Anything).Return(holders, nil)
	runner := &fakeRunner{}
	s := newScheduler(t, treasury, snapshot, runner)

	for i := 0; i < 3; i++ {
		_, err := s.Tick(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, runner.requests, 3)
	assert.Equal(t, 1, runner.requests[0].CycleNumber)
	assert.Equal(t, 3, runner.requests[2].CycleNumber)
}

func TestRunLoopRunsImmediatelyAndStops(t *testing.T) {
	treasury := &mockTreasury{}
	treasury.On("GetTreasuryBalance", mock.Anything).Return(5000.0, nil)
	snapshot := &mockSnapshot{}
	snapshot.On("FetchHolders", mock.Anything).Return(holders, nil)
	runner := &fakeRunner{}
	s := newScheduler(t, treasury, snapshot, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunLoop(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return runner.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not stop after cancellation")
	}
	assert.Equal(t, 1, runner.calls())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Treasury: &mockTreasury{}, Snapshot: &mockSnapshot{}, Runner: &fakeRunner{}})
	assert.Error(t, err, "zero reward pool must be rejected")

	_, err = New(Config{Treasury: &mockTreasury{}, Snapshot: &mockSnapshot{}, Runner: &fakeRunner{}, RewardPool: 10, MinTreasuryBalance: -1})
	assert.Error(t, err)
}
