// Package supervisor wires the keeper's lifecycle: keypair load, channel
// wiring between Monitor and Executor, goroutine orchestration, shutdown,
// and the read-only status queries spec.md §4.6 exposes. It is the glue
// layer; it holds no business logic of its own beyond sequencing.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/config"
	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/evaluator"
	"github.com/solcron/keeper/internal/executor"
	"github.com/solcron/keeper/internal/keypair"
	"github.com/solcron/keeper/internal/monitor"
	"github.com/solcron/keeper/internal/rpcmanager"
	"github.com/solcron/keeper/internal/storage/sql"
	"github.com/solcron/keeper/internal/storage/sql/repository"
)

// requestChannelBuffer sizes the unbounded-in-spirit Monitor-to-Executor
// channel. spec.md §5 calls the channel unbounded; a service cannot
// allocate an unbounded Go channel, so a large buffer stands in for it
// and only a sustained, many-cycle backlog would ever see the Monitor's
// "execution queue full" fallback fire.
const requestChannelBuffer = 4096

// KeeperStatus is the best-effort, non-blocking snapshot exposed by
// Status. It never touches the pipeline directly: every field is read
// from state the Monitor/Executor/RPC Manager already maintain for
// themselves.
type KeeperStatus struct {
	KeeperAddress string
	Running       bool
	Endpoints     []rpcmanager.EndpointHealth
	CacheTotal    int
	CacheActive   int
	CachePending  int
	QueueSize     int
	QueuePriority domain.ExecutionPriority
}

// Supervisor owns the process lifecycle for one keeper instance.
type Supervisor struct {
	cfg     *config.Config
	kp      *keypair.Keypair
	store   *repository.Store
	rpc     *rpcmanager.Manager
	monitor *monitor.Monitor
	exec    *executor.Executor

	requests chan domain.ExecutionRequest

	monitorErr  chan error
	executorErr chan error
}

// New loads the keeper's signing key, opens the database, builds the RPC
// Manager, and wires the Monitor and Executor together through an
// internal channel. It performs no network or database I/O beyond what
// opening the store requires; Run begins the actual pipeline.
func New(ctx context.Context, cfg *config.Config) (*Supervisor, error) {
	kp, err := keypair.Load(cfg.Keeper.WalletPath)
	if err != nil {
		return nil, err
	}

	store, err := sql.NewStore(ctx, sql.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    int(cfg.MaxDBConnections()),
		ConnMaxIdleTime: cfg.DBTimeout(),
	})
	if err != nil {
		return nil, err
	}

	rpc, err := rpcmanager.New(
		cfg.RPCURLs(),
		func(url string) chainclient.ChainClient {
			return chainclient.NewHTTPClient(url, cfg.RequestTimeout())
		},
		cfg.MaxRPCRetries(),
		time.Second,
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	eval := evaluator.New(rpc)

	requests := make(chan domain.ExecutionRequest, requestChannelBuffer)

	mon := monitor.New(store, eval, requests, cfg.PollInterval(), cfg.Monitoring.MaxConcurrentJobs, time.Duration(cfg.Monitoring.JobCacheTTLSeconds)*time.Second)

	exec := executor.New(
		rpc,
		store,
		chainclient.ZeroRegistryReader{},
		kp,
		cfg.Execution.MaxRetries,
		cfg.RetryDelay(),
		cfg.SimulationEnabled(),
		requests,
	)

	return &Supervisor{
		cfg:         cfg,
		kp:          kp,
		store:       store,
		rpc:         rpc,
		monitor:     mon,
		exec:        exec,
		requests:    requests,
		monitorErr:  make(chan error, 1),
		executorErr: make(chan error, 1),
	}, nil
}

// Run starts the Monitor and Executor and blocks until ctx is cancelled
// (normally by an interrupt signal upstream) or either component
// terminates on its own, then shuts down: the Monitor stops producing
// first, then the Executor is stopped, letting an in-flight execution
// finish. Requests still waiting in the Executor's queue are not processed.
func (s *Supervisor) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "keeper starting", slog.String("keeper_address", s.kp.Address()))

	if err := s.monitor.RefreshCache(ctx); err != nil {
		slog.WarnContext(ctx, "initial cache refresh failed, falling back to eligible-jobs query", slog.String("error", err.Error()))
	}

	go func() { s.executorErr <- s.exec.Start(ctx) }()
	go func() { s.monitorErr <- s.monitor.Start(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-s.monitorErr:
		runErr = err
		slog.ErrorContext(ctx, "monitor terminated unexpectedly", slog.String("error", errString(err)))
	case err := <-s.executorErr:
		runErr = err
		slog.ErrorContext(ctx, "executor terminated unexpectedly", slog.String("error", errString(err)))
	}

	s.shutdown(ctx)
	return runErr
}

func (s *Supervisor) shutdown(ctx context.Context) {
	slog.InfoContext(ctx, "keeper shutting down")
	if err := s.monitor.Stop(); err != nil {
		slog.WarnContext(ctx, "monitor stop error", slog.String("error", err.Error()))
	}
	if err := s.exec.Stop(); err != nil {
		slog.WarnContext(ctx, "executor stop error", slog.String("error", err.Error()))
	}
	if err := s.store.Close(); err != nil {
		slog.WarnContext(ctx, "store close error", slog.String("error", err.Error()))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Status returns a best-effort snapshot for the metrics endpoint's
// /status route. It never blocks on the pipeline: every value
// comes from state the Monitor/Executor/RPC Manager maintain for reads
// concurrent with their own loops.
func (s *Supervisor) Status() KeeperStatus {
	total, active, pending := s.monitor.CacheStats()
	queueSize, queuePriority := s.exec.QueueStats()

	return KeeperStatus{
		KeeperAddress: s.kp.Address(),
		Running:       true,
		Endpoints:     s.rpc.HealthSnapshot(),
		CacheTotal:    total,
		CacheActive:   active,
		CachePending:  pending,
		QueueSize:     queueSize,
		QueuePriority: queuePriority,
	}
}

// ForceJobExecution bypasses the Monitor's timers and evaluates jobID
// immediately. It fails if the job is not currently cached (spec.md
// §4.4's force-check contract).
func (s *Supervisor) ForceJobExecution(ctx context.Context, jobID uint64) error {
	return s.monitor.ForceJobCheck(ctx, jobID)
}

// KeeperAddress returns the base58-encoded public key this keeper signs
// transactions with.
func (s *Supervisor) KeeperAddress() string {
	return s.kp.Address()
}

// Store exposes the Supervisor's persistence layer. The CLI's `status`
// subcommand does not use it; it opens its own store.
func (s *Supervisor) Store() *repository.Store {
	return s.store
}
