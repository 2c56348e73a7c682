package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/ledger"
	"github.com/helix-tools/ledger-go/types"
)

const (
	testOperator = "0xoperator"
	alice        = "0xalice"
	bob          = "0xbob"
	// carol is an IAM principal; the slash must survive path escaping.
	carol = "arn:aws:iam::123456789012:user/carol"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type brokenTransferer struct{}

func (brokenTransferer) Transfer(context.Context, []types.Payout) error {
	return errors.New("settlement network unavailable")
}

type testEnv struct {
	ledger *ledger.Ledger
	server *httptest.Server
	clock  *testClock
}

func newTestEnv(t *testing.T, opts ...ledger.Option) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
	opts = append([]ledger.Option{ledger.WithClock(clock.Now)}, opts...)

	l, err := ledger.New(testOperator, opts...)
	require.NoError(t, err)

	server := httptest.NewServer(NewRouter(l, zap.NewNop()))
	t.Cleanup(server.Close)

	return &testEnv{ledger: l, server: server, clock: clock}
}

// NewTestClient creates an unsigned client acting as identity.
func (e *testEnv) NewTestClient(t *testing.T, identity string) *Client {
	t.Helper()

	client, err := NewClient(context.Background(), ClientConfig{BaseURL: e.server.URL, Identity: identity})
	require.NoError(t, err)

	return client
}
