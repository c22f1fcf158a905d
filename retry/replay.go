package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/TtheBC01/vector/channel"
	"github.com/TtheBC01/vector/observability"
)

// Coordinator replays a queued action through the forwarding core with its
// original parameters.
type Coordinator interface {
	ReplayCreation(ctx context.Context, req channel.CreateTransferRequest) error
	ReplayResolution(ctx context.Context, req channel.ResolveTransferRequest) error
}

// DefaultMaxAttempts bounds how many drains may retry one action before it is
// parked as exhausted. Exhausted actions stay in the store for operator
// intervention instead of retrying forever.
const DefaultMaxAttempts = 5

// Replayer drains a channel's queued actions when the counterparty signals
// liveness. Drains for the same channel are serialized, and replays are paced
// so a peer that just reconnected is not flooded.
type Replayer struct {
	store       *Store
	coord       Coordinator
	logger      *slog.Logger
	metrics     *observability.RouterMetrics
	limiter     *rate.Limiter
	maxAttempts int

	mu       sync.Mutex
	draining map[common.Address]*sync.Mutex
}

// ReplayerOption customises the replayer.
type ReplayerOption func(*Replayer)

// WithLogger installs a custom logger.
func WithLogger(logger *slog.Logger) ReplayerOption {
	return func(r *Replayer) { r.logger = logger }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(metrics *observability.RouterMetrics) ReplayerOption {
	return func(r *Replayer) { r.metrics = metrics }
}

// WithMaxAttempts overrides the per-action retry budget.
func WithMaxAttempts(attempts int) ReplayerOption {
	return func(r *Replayer) { r.maxAttempts = attempts }
}

// WithRateLimit overrides the replay pacing.
func WithRateLimit(limiter *rate.Limiter) ReplayerOption {
	return func(r *Replayer) { r.limiter = limiter }
}

// NewReplayer wires the drain path between the store and the coordinators.
func NewReplayer(store *Store, coord Coordinator, opts ...ReplayerOption) (*Replayer, error) {
	if store == nil {
		return nil, fmt.Errorf("retry replayer: store required")
	}
	if coord == nil {
		return nil, fmt.Errorf("retry replayer: coordinator required")
	}
	replayer := &Replayer{
		store:       store,
		coord:       coord,
		maxAttempts: DefaultMaxAttempts,
		limiter:     rate.NewLimiter(rate.Limit(10), 1),
		draining:    make(map[common.Address]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(replayer)
	}
	if replayer.logger == nil {
		replayer.logger = slog.Default()
	}
	if replayer.metrics == nil {
		replayer.metrics = observability.Router()
	}
	return replayer, nil
}

// Result summarises one drain pass.
type Result struct {
	Replayed  int
	Failed    int
	Exhausted int
}

// OnPeerLive drains the channel's queue FIFO, replaying each action through
// the matching coordinator entry point. Successful replays are removed;
// failures stay queued with their attempt counter bumped. A failed action
// does not block later actions: queued payments are independent.
func (r *Replayer) OnPeerLive(ctx context.Context, channelAddress common.Address) (Result, error) {
	release := r.lockChannel(channelAddress)
	defer release()

	result := Result{}
	actions, err := r.store.Pending(ctx, channelAddress)
	if err != nil {
		return result, fmt.Errorf("load pending actions: %w", err)
	}
	log := r.logger.With("channel", channelAddress.Hex())
	for _, action := range actions {
		if err := r.limiter.Wait(ctx); err != nil {
			return result, err
		}
		if err := r.replay(ctx, action); err != nil {
			result.Failed++
			attempts, exhausted, recordErr := r.store.RecordFailure(ctx, action.ID, r.maxAttempts)
			if recordErr != nil {
				log.Error("failed to record replay failure", "action", action.ID, "error", recordErr)
			}
			if exhausted {
				result.Exhausted++
				r.metrics.RecordReplay("exhausted")
				log.Warn("queued action exhausted its retry budget",
					"action", action.ID, "type", string(action.Type), "attempts", attempts)
				continue
			}
			r.metrics.RecordReplay("failure")
			log.Info("replay failed, action stays queued",
				"action", action.ID, "type", string(action.Type), "attempts", attempts, "error", err)
			continue
		}
		if _, err := r.store.Remove(ctx, action.ID); err != nil {
			log.Error("failed to remove replayed action", "action", action.ID, "error", err)
		}
		result.Replayed++
		r.metrics.RecordReplay("success")
	}
	r.publishDepth(ctx)
	return result, nil
}

func (r *Replayer) replay(ctx context.Context, action Action) error {
	switch action.Type {
	case ActionTransferCreation:
		if action.CreationPayload == nil {
			return fmt.Errorf("creation action %s missing payload", action.ID)
		}
		return r.coord.ReplayCreation(ctx, *action.CreationPayload)
	case ActionTransferResolution:
		if action.ResolutionPayload == nil {
			return fmt.Errorf("resolution action %s missing payload", action.ID)
		}
		return r.coord.ReplayResolution(ctx, *action.ResolutionPayload)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (r *Replayer) lockChannel(channelAddress common.Address) func() {
	r.mu.Lock()
	lock, ok := r.draining[channelAddress]
	if !ok {
		lock = &sync.Mutex{}
		r.draining[channelAddress] = lock
	}
	r.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (r *Replayer) publishDepth(ctx context.Context) {
	depth, err := r.store.Depth(ctx)
	if err != nil {
		r.logger.Error("failed to read queue depth", "error", err)
		return
	}
	r.metrics.SetQueueDepth(float64(depth))
}
