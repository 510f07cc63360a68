package rpcmanager_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/keeperr"
	"github.com/solcron/keeper/internal/rpcmanager"
)

// fakeClient is a minimal chainclient.ChainClient whose behavior is
// driven by a function field, in the style of the teacher's mock
// storage types.
type fakeClient struct {
	getBalance func(ctx context.Context, pubkey [32]byte) (uint64, error)
}

func (f *fakeClient) LatestBlockhash(ctx context.Context) ([32]byte, error) { return [32]byte{}, nil }
func (f *fakeClient) SendAndConfirm(ctx context.Context, tx *chainclient.Transaction) (string, error) {
	return "", nil
}
func (f *fakeClient) Simulate(ctx context.Context, tx *chainclient.Transaction) (*chainclient.SimulationResult, error) {
	return nil, nil
}
func (f *fakeClient) GetAccount(ctx context.Context, pubkey [32]byte) (*chainclient.Account, error) {
	return nil, nil
}
func (f *fakeClient) GetMultipleAccounts(ctx context.Context, pubkeys [][32]byte) ([]*chainclient.Account, error) {
	return nil, nil
}
func (f *fakeClient) GetBalance(ctx context.Context, pubkey [32]byte) (uint64, error) {
	return f.getBalance(ctx, pubkey)
}
func (f *fakeClient) GetTransactionCount(ctx context.Context) (uint64, error) { return 0, nil }

func TestManager_RetriesAcrossEndpoints(t *testing.T) {
	var calls []string
	clients := map[string]*fakeClient{
		"a": {getBalance: func(ctx context.Context, pubkey [32]byte) (uint64, error) {
			calls = append(calls, "a")
			return 0, errors.New("boom")
		}},
		"b": {getBalance: func(ctx context.Context, pubkey [32]byte) (uint64, error) {
			calls = append(calls, "b")
			return 42, nil
		}},
	}

	mgr, err := rpcmanager.New([]string{"a", "b"}, func(url string) chainclient.ChainClient {
		return clients[url]
	}, 2, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	balance, err := mgr.GetBalance(context.Background(), [32]byte{})
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 42 {
		t.Fatalf("balance = %d, want 42", balance)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("calls = %v, want [a b]", calls)
	}
}

func TestManager_ExhaustsRetriesAndReturnsTransientError(t *testing.T) {
	client := &fakeClient{getBalance: func(ctx context.Context, pubkey [32]byte) (uint64, error) {
		return 0, errors.New("unreachable")
	}}

	mgr, err := rpcmanager.New([]string{"a"}, func(url string) chainclient.ChainClient {
		return client
	}, 1, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = mgr.GetBalance(context.Background(), [32]byte{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !keeperr.IsRetryable(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestManager_RequiresAtLeastOneEndpoint(t *testing.T) {
	_, err := rpcmanager.New(nil, func(url string) chainclient.ChainClient { return nil }, 1, time.Millisecond)
	if err == nil {
		t.Fatal("expected error for empty endpoint list")
	}
}

func TestManager_HealthSnapshotReflectsFailures(t *testing.T) {
	client := &fakeClient{getBalance: func(ctx context.Context, pubkey [32]byte) (uint64, error) {
		return 0, errors.New("boom")
	}}

	mgr, err := rpcmanager.New([]string{"a"}, func(url string) chainclient.ChainClient {
		return client
	}, 0, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 10; i++ {
		_, _ = mgr.GetBalance(context.Background(), [32]byte{})
	}

	snapshot := mgr.HealthSnapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(snapshot))
	}
	if snapshot[0].ErrorCount == 0 {
		t.Fatal("expected recorded errors")
	}
}
