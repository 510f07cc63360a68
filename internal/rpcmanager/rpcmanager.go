// Package rpcmanager fronts a pool of RPC endpoints with round-robin
// selection, health tracking, and retry, grounded on the original
// keeper-node's rpc.rs RpcManager. Every caller in the keeper core talks
// to the chain through this package rather than to a chainclient.ChainClient
// directly.
package rpcmanager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/keeperr"
)

const (
	// unhealthyErrorThreshold is the error_count an endpoint must exceed
	// before its failure rate is considered at all.
	unhealthyErrorThreshold = 5
	// unhealthyErrorRate is the error rate (errors / requests) above
	// which an endpoint past the count threshold is marked unhealthy.
	unhealthyErrorRate = 0.1
	// healthResetWindow is how long an endpoint must go without an error
	// before its counters reset to fully healthy.
	healthResetWindow = 5 * time.Minute
	// retryEligibleWindow is the minimum time an unhealthy endpoint must
	// sit out before it is retried again.
	retryEligibleWindow = 60 * time.Second
)

// endpoint tracks one RPC URL's client and health counters.
type endpoint struct {
	url          string
	client       chainclient.ChainClient
	requestCount uint64
	errorCount   uint64
	lastError    time.Time
	lastSuccess  time.Time
	markedDownAt time.Time
	unhealthy    bool
}

// EndpointHealth is a read-only snapshot of one endpoint's health, for
// status reporting.
type EndpointHealth struct {
	URL          string
	Healthy      bool
	RequestCount uint64
	ErrorCount   uint64
	LastError    time.Time
}

// Manager round-robins across a pool of chain endpoints, skipping
// unhealthy ones, and retries failed calls against the next endpoint in
// the pool up to MaxRetries times.
type Manager struct {
	mu         sync.Mutex
	endpoints  []*endpoint
	next       int
	maxRetries uint32
	retryDelay time.Duration
}

// New builds a Manager over urls using factory to construct a
// chainclient.ChainClient per URL. factory is injected so tests can
// supply fakes without touching the network.
func New(urls []string, factory func(url string) chainclient.ChainClient, maxRetries uint32, retryDelay time.Duration) (*Manager, error) {
	if len(urls) == 0 {
		return nil, keeperr.New(keeperr.KindConfig, "rpc manager requires at least one endpoint")
	}

	endpoints := make([]*endpoint, len(urls))
	for i, url := range urls {
		endpoints[i] = &endpoint{url: url, client: factory(url)}
	}

	return &Manager{
		endpoints:  endpoints,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// HealthSnapshot returns the current health of every endpoint in pool
// order.
func (m *Manager) HealthSnapshot() []EndpointHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]EndpointHealth, len(m.endpoints))
	for i, ep := range m.endpoints {
		snapshot[i] = EndpointHealth{
			URL:          ep.url,
			Healthy:      !ep.isUnhealthy(),
			RequestCount: ep.requestCount,
			ErrorCount:   ep.errorCount,
			LastError:    ep.lastError,
		}
	}
	return snapshot
}

func (e *endpoint) isUnhealthy() bool {
	if !e.unhealthy {
		return false
	}
	// An unhealthy endpoint becomes retry-eligible again after sitting
	// out for retryEligibleWindow, independent of the reset window below.
	if time.Since(e.markedDownAt) >= retryEligibleWindow {
		return false
	}
	return true
}

// recordResult updates an endpoint's counters after a call, applying the
// reset-on-success and mark-unhealthy rules from spec.md §4.1.
func (e *endpoint) recordResult(err error) {
	e.requestCount++
	now := time.Now()

	if err == nil {
		e.lastSuccess = now
		if time.Since(e.lastError) >= healthResetWindow {
			e.unhealthy = false
			e.errorCount = 0
		}
		return
	}

	e.errorCount++
	e.lastError = now

	if e.errorCount > unhealthyErrorThreshold {
		rate := float64(e.errorCount) / float64(e.requestCount)
		if rate > unhealthyErrorRate {
			e.unhealthy = true
			e.markedDownAt = now
		}
	}
}

// selectEndpoint picks the next healthy endpoint using round-robin
// starting from the manager's cursor, by index rather than pointer
// identity so concurrent health updates never race against the
// selection itself.
func (m *Manager) selectEndpoint() (int, *endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.endpoints)
	for i := 0; i < n; i++ {
		idx := (m.next + i) % n
		ep := m.endpoints[idx]
		if !ep.isUnhealthy() {
			m.next = (idx + 1) % n
			return idx, ep, nil
		}
	}

	// Every endpoint is unhealthy. Fall back to round-robin anyway
	// rather than failing outright — an unhealthy endpoint that is
	// still reachable is better than no attempt.
	idx := m.next
	m.next = (m.next + 1) % n
	return idx, m.endpoints[idx], nil
}

// withRetry runs call against successive endpoints in the pool, up to
// MaxRetries+1 attempts, recording health on each attempt.
func withRetry[T any](ctx context.Context, m *Manager, op string, call func(chainclient.ChainClient) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := int(m.maxRetries) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		idx, ep, err := m.selectEndpoint()
		if err != nil {
			return zero, err
		}

		result, callErr := call(ep.client)

		m.mu.Lock()
		m.endpoints[idx].recordResult(callErr)
		m.mu.Unlock()

		if callErr == nil {
			return result, nil
		}

		lastErr = callErr
		slog.WarnContext(ctx, "rpc call failed",
			slog.String("op", op),
			slog.String("endpoint", ep.url),
			slog.Int("attempt", attempt+1),
			slog.String("error", callErr.Error()),
		)

		if attempt < attempts-1 {
			delay := m.retryDelay * time.Duration(uint32(1)<<attempt)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return zero, keeperr.Transient(keeperr.Wrap(keeperr.KindRPC, op+" exhausted retries", lastErr))
}

// LatestBlockhash fetches a recent blockhash, retrying across the pool.
func (m *Manager) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	return withRetry(ctx, m, "getLatestBlockhash", func(c chainclient.ChainClient) ([32]byte, error) {
		return c.LatestBlockhash(ctx)
	})
}

// SendAndConfirmTransaction submits tx and returns its signature.
func (m *Manager) SendAndConfirmTransaction(ctx context.Context, tx *chainclient.Transaction) (string, error) {
	return withRetry(ctx, m, "sendTransaction", func(c chainclient.ChainClient) (string, error) {
		return c.SendAndConfirm(ctx, tx)
	})
}

// SimulateTransaction dry-runs tx.
func (m *Manager) SimulateTransaction(ctx context.Context, tx *chainclient.Transaction) (*chainclient.SimulationResult, error) {
	return withRetry(ctx, m, "simulateTransaction", func(c chainclient.ChainClient) (*chainclient.SimulationResult, error) {
		return c.Simulate(ctx, tx)
	})
}

// GetAccountData fetches an account's data, returning (nil, nil) if the
// account does not exist rather than an error.
func (m *Manager) GetAccountData(ctx context.Context, pubkey [32]byte) (*chainclient.Account, error) {
	return withRetry(ctx, m, "getAccountInfo", func(c chainclient.ChainClient) (*chainclient.Account, error) {
		return c.GetAccount(ctx, pubkey)
	})
}

// GetMultipleAccounts fetches several accounts, retrying the whole
// batch across the endpoint pool as one withRetry call.
func (m *Manager) GetMultipleAccounts(ctx context.Context, pubkeys [][32]byte) ([]*chainclient.Account, error) {
	return withRetry(ctx, m, "getMultipleAccounts", func(c chainclient.ChainClient) ([]*chainclient.Account, error) {
		return c.GetMultipleAccounts(ctx, pubkeys)
	})
}

// GetBalance fetches an account's lamport balance.
func (m *Manager) GetBalance(ctx context.Context, pubkey [32]byte) (uint64, error) {
	return withRetry(ctx, m, "getBalance", func(c chainclient.ChainClient) (uint64, error) {
		return c.GetBalance(ctx, pubkey)
	})
}

// GetTransactionCount fetches the cluster's current transaction count.
func (m *Manager) GetTransactionCount(ctx context.Context) (uint64, error) {
	return withRetry(ctx, m, "getTransactionCount", func(c chainclient.ChainClient) (uint64, error) {
		return c.GetTransactionCount(ctx)
	})
}
