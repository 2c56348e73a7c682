package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/helix-tools/ledger-go/payments"
	"github.com/helix-tools/ledger-go/types"
)

const (
	testOperator = "0xoperator"
	alice        = "0xalice"
	bob          = "0xbob"
	carol        = "0xcarol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)

	return nil
}

func (p *recordingPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]types.Event(nil), p.events...)
}

func (p *recordingPublisher) Last() types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.events) == 0 {
		return types.Event{}
	}

	return p.events[len(p.events)-1]
}

type failingTransferer struct {
	calls int
}

func (f *failingTransferer) Transfer(context.Context, []types.Payout) error {
	f.calls++

	return errors.New("settlement rail unavailable")
}

type harness struct {
	l     *Ledger
	book  *payments.Book
	pub   *recordingPublisher
	clock *fakeClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		book:  payments.NewBook(),
		pub:   &recordingPublisher{},
		clock: newFakeClock(),
	}

	base := []Option{WithTransferer(h.book), WithPublisher(h.pub), WithClock(h.clock.Now)}
	l, err := New(testOperator, append(base, opts...)...)
	require.NoError(t, err)
	h.l = l

	return h
}

func (h *harness) list(t *testing.T, owner string, price uint64) uint64 {
	t.Helper()

	id, err := h.l.ListDataset(context.Background(), owner, types.ListDatasetRequest{
		ContentHash: fmt.Sprintf("Qm%s%d", owner, price),
		Price:       price,
		Description: "weather observations",
		SizeBytes:   1024,
		DataType:    "csv",
	})
	require.NoError(t, err)

	return id
}

func (h *harness) purchase(t *testing.T, buyer string, id, payment uint64) {
	t.Helper()

	_, err := h.l.PurchaseDataset(context.Background(), buyer, id, payment)
	require.NoError(t, err)
}

func TestNew(t *testing.T) {
	t.Run("requires operator", func(t *testing.T) {
		_, err := New("")
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		l, err := New(testOperator)
		require.NoError(t, err)
		assert.Equal(t, testOperator, l.Operator())
		assert.Equal(t, uint64(DefaultFeeRate), l.FeeRate())
		assert.Zero(t, l.DatasetCount())
		assert.Zero(t, l.CategoryCount())
	})

	t.Run("rejects fee rate above 1000", func(t *testing.T) {
		_, err := New(testOperator, WithFeeRate(MaxFeeRate+1))
		require.Error(t, err)
	})

	t.Run("accepts full fee rate", func(t *testing.T) {
		l, err := New(testOperator, WithFeeRate(MaxFeeRate))
		require.NoError(t, err)
		assert.Equal(t, uint64(MaxFeeRate), l.FeeRate())
	})
}

func TestEventsAreStamped(t *testing.T) {
	h := newHarness(t)

	h.list(t, alice, 10)
	h.list(t, alice, 20)

	events := h.pub.Events()
	require.Len(t, events, 2)

	for i, ev := range events {
		assert.Equal(t, types.EventDatasetListed, ev.Type)
		assert.Equal(t, uint64(i+1), ev.Sequence)
		assert.Equal(t, alice, ev.Actor)
		assert.Equal(t, h.clock.Now(), ev.Timestamp)
		assert.NotEmpty(t, ev.ID)
	}
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Equal(t, uint64(1), events[0].DatasetID)
	assert.Equal(t, uint64(20), events[1].Price)
}

func TestRejectedOperationEmitsNothing(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, alice, 10)

	err := h.l.UpdateDatasetPrice(context.Background(), bob, id, 1)
	require.True(t, IsUnauthorized(err))

	assert.Len(t, h.pub.Events(), 1)
}

func TestPublishFailureKeepsMutation(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := newHarness(t, WithLogger(zap.New(core)))
	h.pub.err = errors.New("queue unavailable")

	id := h.list(t, alice, 10)

	ds, err := h.l.Dataset(id)
	require.NoError(t, err)
	assert.Equal(t, alice, ds.Owner)

	assert.Equal(t, 1, logs.FilterMessage("failed to publish ledger event").Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.l.metrics.publishFailures))
}

// contextPublisher rejects events whose context is done, and reads the
// ledger while publishing.
type contextPublisher struct {
	l       *Ledger
	events  []types.Event
	counts  []uint64
	timeout time.Duration
}

func (p *contextPublisher) Publish(ctx context.Context, ev types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		p.timeout = time.Until(deadline)
	}
	// Deadlocks if the write lock is still held.
	p.counts = append(p.counts, p.l.DatasetCount())
	p.events = append(p.events, ev)

	return nil
}

func TestPublishIgnoresCallerCancellation(t *testing.T) {
	pub := &contextPublisher{}
	l, err := New(testOperator, WithPublisher(pub), WithPublishTimeout(time.Minute))
	require.NoError(t, err)
	pub.l = l

	id, err := l.ListDataset(context.Background(), alice, types.ListDatasetRequest{ContentHash: "QmA", Price: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.DeactivateDataset(ctx, alice, id))

	ds, err := l.Dataset(id)
	require.NoError(t, err)
	assert.False(t, ds.IsActive)

	require.Len(t, pub.events, 2)
	assert.Equal(t, types.EventDatasetDeactivated, pub.events[1].Type)
	assert.Equal(t, uint64(2), pub.events[1].Sequence)
	assert.Equal(t, []uint64{1, 1}, pub.counts)
	assert.Greater(t, pub.timeout, 50*time.Second)
	assert.LessOrEqual(t, pub.timeout, time.Minute)
}

func TestOperationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t, WithRegisterer(reg))

	id := h.list(t, alice, 100)
	require.Error(t, h.l.UpdateDatasetPrice(context.Background(), bob, id, 1))
	h.purchase(t, bob, id, 100)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.l.metrics.operations.WithLabelValues("ListDataset", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.l.metrics.operations.WithLabelValues("UpdateDatasetPrice", "unauthorized")))
	assert.Equal(t, float64(100), testutil.ToFloat64(h.l.metrics.paymentVolume.WithLabelValues("purchase")))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.l.metrics.feesCollected))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.l.metrics.datasets))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestErrorKinds(t *testing.T) {
	err := newError(ErrInactive, "PurchaseDataset", "dataset %d is inactive", 7)

	assert.Equal(t, "PurchaseDataset: inactive entity: dataset 7 is inactive", err.Error())
	assert.True(t, IsInactive(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrInactive, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Nil(t, KindOf(errors.New("plain")))

	cause := errors.New("rail down")
	transfer := &Error{Kind: ErrTransferFailure, Op: "Subscribe", Err: cause}
	assert.True(t, IsTransferFailure(transfer))
	assert.ErrorIs(t, transfer, cause)
	assert.Equal(t, "Subscribe: transfer failure: rail down", transfer.Error())

	assert.Equal(t, "inactive", Code(err))
	assert.Equal(t, "transfer_failure", Code(fmt.Errorf("wrapped: %w", transfer)))
	assert.Equal(t, "insufficient_payment", Code(newError(ErrInsufficientPayment, "PurchaseDataset", "short")))
	assert.Equal(t, "error", Code(errors.New("plain")))
}

func TestConcurrentPurchases(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, alice, 1000)

	const buyers = 32

	var wg sync.WaitGroup
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.l.PurchaseDataset(context.Background(), fmt.Sprintf("0xbuyer%d", i), id, 1000)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(buyers*25), h.book.Balance(testOperator))
	assert.Equal(t, uint64(buyers*975), h.book.Balance(alice))

	events := h.pub.Events()
	require.Len(t, events, buyers+1)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}
}
