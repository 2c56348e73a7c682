// Package ledger is the authoritative ledger and rule engine of the dataset
// marketplace: dataset registry, purchases with fee splitting, subscriptions,
// access control and reviews.
//
// A Ledger serializes every mutation behind one write lock. A mutation either
// commits fully (state, value transfer and notification) or is rejected with
// an *Error and leaves no trace. Reads take the read lock and return copies.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/payments"
	"github.com/helix-tools/ledger-go/types"
)

// DefaultFeeRate is the platform cut in parts per thousand (2.5%).
const DefaultFeeRate = 25

// MaxFeeRate is the largest accepted fee rate (the whole payment).
const MaxFeeRate = 1000

// DefaultPublishTimeout bounds one Publish call.
const DefaultPublishTimeout = 10 * time.Second

// Transferer delivers the payouts of one payment. Transfer must be
// all-or-nothing: on error no payout may have been credited.
type Transferer interface {
	Transfer(ctx context.Context, payouts []types.Payout) error
}

// BalanceKeeper is a Transferer that holds balances in process. Its balances
// travel with the ledger snapshot.
type BalanceKeeper interface {
	Transferer
	Balances() map[string]uint64
	LoadBalances(balances map[string]uint64)
}

// Publisher receives one notification per committed mutation.
type Publisher interface {
	Publish(ctx context.Context, event types.Event) error
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithFeeRate sets the per-mille platform fee. It is fixed for the ledger's lifetime.
func WithFeeRate(rate uint64) Option {
	return func(l *Ledger) { l.feeRate = rate }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithTransferer sets where payment splits are paid out. Defaults to an in-memory payments.Book.
func WithTransferer(t Transferer) Option {
	return func(l *Ledger) { l.payments = t }
}

// WithPublisher sets the notification sink.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithPublishTimeout bounds each Publish call. Publishing ignores the
// cancellation of the request context, so this is its only deadline.
func WithPublishTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.publishTimeout = d }
}

// WithRegisterer registers the ledger's prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Ledger) { l.registerer = reg }
}

// Ledger holds all marketplace state.
type Ledger struct {
	mu sync.RWMutex

	operator   string
	feeRate    uint64
	now        func() time.Time
	logger     *zap.Logger
	payments   Transferer
	publisher  Publisher
	registerer prometheus.Registerer
	metrics    *metrics

	publishTimeout time.Duration
	// outbox holds stamped events not yet handed to the publisher, in
	// sequence order. publishMu serializes flushes so order is kept.
	outboxMu  sync.Mutex
	outbox    []types.Event
	publishMu sync.Mutex

	datasetCount  uint64
	categoryCount uint64
	eventSeq      uint64

	datasets           map[uint64]*types.Dataset
	categories         map[uint64]*types.Category
	userDatasets       map[string][]uint64
	userPurchases      map[string][]uint64
	reviews            map[uint64][]types.Review
	ratingSums         map[uint64]uint64
	versions           map[uint64][]types.Version
	datasetCategories  map[uint64]uint64
	datasetTags        map[uint64][]string
	access             map[uint64]*accessState
	userGroups         map[string][]string
	subscriptions      map[types.SubscriptionKey]types.Subscription
	subscriptionPrices map[uint64]uint64
}

// New creates an empty ledger. operator is the platform operator identity: it
// receives every fee and is the only caller allowed to curate categories.
func New(operator string, opts ...Option) (*Ledger, error) {
	if operator == "" {
		return nil, fmt.Errorf("operator identity is required")
	}

	l := &Ledger{
		operator:       operator,
		feeRate:        DefaultFeeRate,
		now:            time.Now,
		logger:         zap.NewNop(),
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.feeRate > MaxFeeRate {
		return nil, fmt.Errorf("fee rate %d exceeds %d per mille", l.feeRate, MaxFeeRate)
	}
	if l.payments == nil {
		l.payments = payments.NewBook()
	}

	l.metrics = newMetrics(l.registerer)
	l.reset()

	return l, nil
}

func (l *Ledger) reset() {
	l.datasetCount = 0
	l.categoryCount = 0
	l.eventSeq = 0
	l.datasets = make(map[uint64]*types.Dataset)
	l.categories = make(map[uint64]*types.Category)
	l.userDatasets = make(map[string][]uint64)
	l.userPurchases = make(map[string][]uint64)
	l.reviews = make(map[uint64][]types.Review)
	l.ratingSums = make(map[uint64]uint64)
	l.versions = make(map[uint64][]types.Version)
	l.datasetCategories = make(map[uint64]uint64)
	l.datasetTags = make(map[uint64][]string)
	l.access = make(map[uint64]*accessState)
	l.userGroups = make(map[string][]string)
	l.subscriptions = make(map[types.SubscriptionKey]types.Subscription)
	l.subscriptionPrices = make(map[uint64]uint64)
}

// Operator returns the platform operator identity.
func (l *Ledger) Operator() string {
	return l.operator
}

// FeeRate returns the per-mille platform fee.
func (l *Ledger) FeeRate() uint64 {
	return l.feeRate
}

// Sequence returns the sequence number of the last committed mutation.
func (l *Ledger) Sequence() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.eventSeq
}

// record logs and counts the outcome of a mutating operation.
func (l *Ledger) record(op, caller string, err error) {
	if err != nil {
		l.metrics.operations.WithLabelValues(op, Code(err)).Inc()
		l.logger.Debug("ledger operation rejected",
			zap.String("op", op),
			zap.String("caller", caller),
			zap.Error(err),
		)
		return
	}

	l.metrics.operations.WithLabelValues(op, "ok").Inc()
	l.logger.Debug("ledger operation committed",
		zap.String("op", op),
		zap.String("caller", caller),
	)
}

// emit stamps a notification and queues it for publishing. It runs under
// the write lock; publish sends the queue once the lock is released.
func (l *Ledger) emit(_ context.Context, ev types.Event) {
	l.eventSeq++
	ev.ID = uuid.NewString()
	ev.Sequence = l.eventSeq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now().UTC()
	}

	if l.publisher == nil {
		return
	}

	l.outboxMu.Lock()
	l.outbox = append(l.outbox, ev)
	l.outboxMu.Unlock()
}

// publish hands queued events to the publisher. Every mutating operation
// defers it ahead of taking the write lock, so it runs after the unlock.
// The mutation has already committed: the caller's cancellation is ignored
// and a publish failure is logged rather than returned.
func (l *Ledger) publish(ctx context.Context) {
	if l.publisher == nil {
		return
	}

	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	l.outboxMu.Lock()
	events := l.outbox
	l.outbox = nil
	l.outboxMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		l.publishOne(ctx, ev)
	}
}

func (l *Ledger) publishOne(ctx context.Context, ev types.Event) {
	ctx, cancel := context.WithTimeout(ctx, l.publishTimeout)
	defer cancel()

	if err := l.publisher.Publish(ctx, ev); err != nil {
		l.metrics.publishFailures.Inc()
		l.logger.Error("failed to publish ledger event",
			zap.String("event_type", string(ev.Type)),
			zap.Uint64("sequence", ev.Sequence),
			zap.Uint64("dataset_id", ev.DatasetID),
			zap.Error(err),
		)
	}
}

func requireCaller(op, caller string) error {
	if caller == "" {
		return newError(ErrUnauthorized, op, "caller identity is required")
	}

	return nil
}

// dataset returns the stored record for id. Ids never assigned are NotFound.
func (l *Ledger) dataset(op string, id uint64) (*types.Dataset, error) {
	ds, ok := l.datasets[id]
	if !ok {
		return nil, newError(ErrNotFound, op, "dataset %d does not exist", id)
	}

	return ds, nil
}

func (l *Ledger) ownedDataset(op, caller string, id uint64) (*types.Dataset, error) {
	ds, err := l.dataset(op, id)
	if err != nil {
		return nil, err
	}
	if ds.Owner != caller {
		return nil, newError(ErrUnauthorized, op, "caller is not the owner of dataset %d", id)
	}

	return ds, nil
}

func (l *Ledger) activeDataset(op string, id uint64) (*types.Dataset, error) {
	ds, err := l.dataset(op, id)
	if err != nil {
		return nil, err
	}
	if !ds.IsActive {
		return nil, newError(ErrInactive, op, "dataset %d is inactive", id)
	}

	return ds, nil
}
