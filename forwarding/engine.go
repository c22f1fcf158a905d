// Package forwarding implements the router's payment-forwarding core: the
// creation-side coordinator that mirrors a sender-leg conditional transfer
// into the recipient channel, the resolution-side coordinator that propagates
// unlock proofs back across legs, and the collateral policy deciding when the
// recipient channel needs a just-in-time deposit first.
package forwarding

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TtheBC01/vector/channel"
	"github.com/TtheBC01/vector/observability"
	"github.com/TtheBC01/vector/rates"
)

var (
	errNilService       = errors.New("forwarding engine: channel service not configured")
	errIdentityRequired = errors.New("forwarding engine: router identifier and signer required")
	errNilEventTransfer = errors.New("forwarding engine: event transfer required")
	errMissingRoutingID = errors.New("forwarding engine: transfer meta missing routingId")
	errMissingAmount    = errors.New("forwarding engine: transfer amount required")
)

// QueueStore is the durable retry queue the engine writes recoverable
// delivery failures to. Writes must be durable before returning.
type QueueStore interface {
	QueueCreation(ctx context.Context, channelAddress common.Address, req channel.CreateTransferRequest) error
	QueueResolution(ctx context.Context, channelAddress common.Address, req channel.ResolveTransferRequest) error
}

// SkipReason explains why a coordinator finished successfully without doing
// any work. Skips are successes, not errors.
type SkipReason string

const (
	// SkipNoPath marks a transfer carrying no usable next hop.
	SkipNoPath SkipReason = "no_path"
	// SkipSelfRecipient marks a transfer routed back to the router itself.
	SkipSelfRecipient SkipReason = "self_recipient"
	// SkipRouterInitiated marks a transfer the router itself created; those
	// are never re-forwarded.
	SkipRouterInitiated SkipReason = "router_initiated"
	// SkipNoResolver marks a resolution event with no unlock proof attached.
	SkipNoResolver SkipReason = "no_resolver"
	// SkipFinalRecipient marks a resolution on a leg where the router is the
	// responder: the payment terminated here, there is no further leg.
	SkipFinalRecipient SkipReason = "final_recipient"
)

// Outcome is the success value of a coordinator operation: either the
// transfer acted on, or a skip reason when there was nothing to do.
type Outcome struct {
	Skipped  SkipReason
	Transfer *channel.Transfer
}

// IsSkipped reports whether the operation was a deliberate no-op.
func (o *Outcome) IsSkipped() bool {
	return o != nil && o.Skipped != ""
}

// Engine drives both forwarding coordinators against the channel service. It
// owns no channel state; every mutation goes through the service, and the
// only in-process state is the per-(channel, asset) collateral serialization.
type Engine struct {
	routerIdentifier string
	routerSigner     common.Address
	svc              channel.Service
	oracle           rates.SwapOracle
	profiles         rates.ProfileSource
	queue            QueueStore
	logger           *slog.Logger
	metrics          *observability.RouterMetrics
	locks            *channelAssetLocks
}

// Option customises the engine.
type Option func(*Engine)

// WithSwapOracle supplies the cross-asset quote source.
func WithSwapOracle(oracle rates.SwapOracle) Option {
	return func(e *Engine) { e.oracle = oracle }
}

// WithProfileSource supplies the rebalance profile source.
func WithProfileSource(profiles rates.ProfileSource) Option {
	return func(e *Engine) { e.profiles = profiles }
}

// WithQueue supplies the durable retry queue.
func WithQueue(queue QueueStore) Option {
	return func(e *Engine) { e.queue = queue }
}

// WithLogger installs a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(metrics *observability.RouterMetrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// NewEngine constructs the forwarding core for the given router identity.
func NewEngine(routerIdentifier string, routerSigner common.Address, svc channel.Service, opts ...Option) (*Engine, error) {
	if routerIdentifier == "" || (routerSigner == common.Address{}) {
		return nil, errIdentityRequired
	}
	if svc == nil {
		return nil, errNilService
	}
	engine := &Engine{
		routerIdentifier: routerIdentifier,
		routerSigner:     routerSigner,
		svc:              svc,
		oracle:           rates.NewStaticOracle(),
		profiles:         rates.NewConfigProfiles(),
		locks:            newChannelAssetLocks(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.metrics == nil {
		engine.metrics = observability.Router()
	}
	return engine, nil
}

// ForwardTransferCreation mirrors a freshly created sender-leg transfer into
// the recipient channel, collateralizing it first when the router's balance
// cannot cover the forward. Terminal failures return a *Error; transfers
// that need no forwarding return a skipped Outcome.
func (e *Engine) ForwardTransferCreation(ctx context.Context, event channel.TransferCreatedEvent) (*Outcome, error) {
	sender := event.Transfer
	if sender == nil {
		return nil, errNilEventTransfer
	}
	if sender.RoutingID() == "" {
		return nil, errMissingRoutingID
	}
	if sender.Amount == nil {
		return nil, errMissingAmount
	}
	routingID := sender.RoutingID()
	log := e.logger.With("routingId", routingID, "senderChannel", sender.ChannelAddress.Hex())

	hop, ok := sender.Meta.NextHop()
	if !ok {
		log.Debug("transfer carries no next hop, nothing to forward")
		e.metrics.RecordForward("skipped")
		return &Outcome{Skipped: SkipNoPath}, nil
	}
	if hop.Recipient == e.routerIdentifier {
		log.Debug("transfer routed to router itself, nothing to forward")
		e.metrics.RecordForward("skipped")
		return &Outcome{Skipped: SkipSelfRecipient}, nil
	}
	if sender.Initiator == e.routerSigner {
		log.Debug("router-initiated transfer, never re-forwarded")
		e.metrics.RecordForward("skipped")
		return &Outcome{Skipped: SkipRouterInitiated}, nil
	}

	senderChannel, err := e.svc.GetStateChannel(ctx, sender.ChannelAddress)
	if err != nil || senderChannel == nil {
		return nil, e.failForward(&Error{
			Code:           CodeSenderChannelNotFound,
			RoutingID:      routingID,
			ChannelAddress: sender.ChannelAddress,
			TransferID:     sender.TransferID,
			Cause:          err,
		})
	}

	intent := hop.Resolve(sender.AssetID, senderChannel.ChainID)
	recipientAmount := new(big.Int).Set(sender.Amount)
	if intent.AssetID != sender.AssetID || intent.ChainID != senderChannel.ChainID {
		quoted, err := e.oracle.Quote(ctx, sender.Amount, sender.AssetID, senderChannel.ChainID, intent.AssetID, intent.ChainID)
		if err != nil {
			return nil, e.failForward(&Error{
				Code:           CodeUnableToCalculateSwap,
				RoutingID:      routingID,
				ChannelAddress: sender.ChannelAddress,
				TransferID:     sender.TransferID,
				Cause:          err,
			})
		}
		recipientAmount = quoted
	}

	// Serialize the collateral decision per (recipient channel, asset): the
	// channel read, balance check, deposit, and transfer creation must not
	// interleave with another forward touching the same pair.
	recipientChannel, err := e.svc.GetStateChannelByParticipants(ctx, e.routerIdentifier, intent.Recipient, intent.ChainID)
	if err != nil || recipientChannel == nil {
		return nil, e.failForward(&Error{
			Code:      CodeRecipientChannelNotFound,
			RoutingID: routingID,
			Cause:     err,
		})
	}
	release := e.locks.acquire(recipientChannel.Address, intent.AssetID)
	defer release()
	recipientChannel, err = e.svc.GetStateChannel(ctx, recipientChannel.Address)
	if err != nil || recipientChannel == nil {
		return nil, e.failForward(&Error{
			Code:      CodeRecipientChannelNotFound,
			RoutingID: routingID,
			Cause:     err,
		})
	}

	profile, err := e.profiles.GetProfile(ctx, recipientChannel.Address, intent.AssetID)
	if err != nil {
		return nil, e.failForward(&Error{
			Code:           CodeUnableToGetRebalanceProfile,
			RoutingID:      routingID,
			ChannelAddress: recipientChannel.Address,
			Cause:          err,
		})
	}

	routerBalance := recipientChannel.BalanceOf(intent.AssetID, e.routerSigner)
	if NeedsCollateral(routerBalance, recipientAmount) {
		deposit := DepositAmount(recipientAmount, profile)
		log.Info("collateralizing recipient channel",
			"recipientChannel", recipientChannel.Address.Hex(),
			"balance", routerBalance.String(),
			"deposit", deposit.String())
		if _, err := e.svc.Deposit(ctx, channel.DepositRequest{
			ChannelAddress: recipientChannel.Address,
			AssetID:        intent.AssetID,
			Amount:         deposit,
		}, intent.ChainID); err != nil {
			return nil, e.failForward(&Error{
				Code:           CodeUnableToCollateralize,
				RoutingID:      routingID,
				ChannelAddress: recipientChannel.Address,
				Cause:          err,
			})
		}
		e.metrics.RecordCollateralDeposit()
	}

	req := channel.CreateTransferRequest{
		ChannelAddress:      recipientChannel.Address,
		AssetID:             intent.AssetID,
		Amount:              recipientAmount,
		RecipientIdentifier: intent.Recipient,
		ConditionType:       sender.ConditionType,
		ConditionDetails:    sender.ConditionDetails,
		Meta:                sender.Meta.ForwardedCopy(senderChannel.CounterpartyIdentifier(e.routerIdentifier)),
		ChainID:             intent.ChainID,
	}
	created, err := e.svc.ConditionalTransfer(ctx, req)
	if err != nil {
		if channel.IsTimeout(err) && !intent.RequireOnline {
			// The queue write is a side effect, not a recovery: the caller is
			// still told the forward did not land synchronously.
			e.queueCreation(ctx, recipientChannel.Address, req, log)
		}
		return nil, e.failForward(&Error{
			Code:           CodeErrorForwardingTransfer,
			RoutingID:      routingID,
			ChannelAddress: recipientChannel.Address,
			TransferID:     sender.TransferID,
			Cause:          err,
		})
	}

	log.Info("forwarded transfer",
		"recipientChannel", recipientChannel.Address.Hex(),
		"recipientAmount", recipientAmount.String(),
		"recipientTransfer", created.TransferID.Hex())
	e.metrics.RecordForward("forwarded")
	return &Outcome{Transfer: created}, nil
}

func (e *Engine) queueCreation(ctx context.Context, channelAddress common.Address, req channel.CreateTransferRequest, log *slog.Logger) {
	if e.queue == nil {
		log.Warn("no retry queue configured, dropping recoverable forward")
		return
	}
	if err := e.queue.QueueCreation(ctx, channelAddress, req); err != nil {
		log.Error("failed to queue transfer creation for retry", "error", err)
		return
	}
	e.metrics.RecordQueued("transfer_creation")
	log.Info("queued transfer creation for retry", "recipientChannel", channelAddress.Hex())
}

func (e *Engine) failForward(ferr *Error) error {
	e.metrics.RecordForward(string(ferr.Code))
	e.logger.Warn("forward attempt failed", "code", string(ferr.Code), "error", ferr.Error())
	return ferr
}
