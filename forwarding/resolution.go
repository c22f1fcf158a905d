package forwarding

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TtheBC01/vector/channel"
)

// ForwardTransferResolution propagates an unlock from one leg of a payment to
// the matching leg the router is responsible for. Unlike creation, any
// failure of the final resolve call is queued for retry: funds left locked
// indefinitely is a worse outcome than a delayed retry.
func (e *Engine) ForwardTransferResolution(ctx context.Context, event channel.TransferResolvedEvent) (*Outcome, error) {
	resolved := event.Transfer
	if resolved == nil {
		return nil, errNilEventTransfer
	}
	if resolved.RoutingID() == "" {
		return nil, errMissingRoutingID
	}
	routingID := resolved.RoutingID()
	log := e.logger.With("routingId", routingID, "resolvedTransfer", resolved.TransferID.Hex())

	if !resolved.Resolved() {
		log.Debug("transfer carries no resolver, nothing to propagate")
		e.metrics.RecordResolution("skipped")
		return &Outcome{Skipped: SkipNoResolver}, nil
	}
	if resolved.Responder == e.routerSigner {
		log.Debug("router is the final recipient on this leg, nothing to propagate")
		e.metrics.RecordResolution("skipped")
		return &Outcome{Skipped: SkipFinalRecipient}, nil
	}

	legs, err := e.svc.GetTransfersByRoutingID(ctx, routingID)
	if err != nil {
		return nil, e.failResolution(&Error{
			Code:       CodeIncomingChannelNotFound,
			RoutingID:  routingID,
			TransferID: resolved.TransferID,
			Cause:      err,
		})
	}
	other := findRouterLeg(legs, e.routerSigner, resolved.TransferID)
	if other == nil {
		return nil, e.failResolution(&Error{
			Code:       CodeIncomingChannelNotFound,
			RoutingID:  routingID,
			TransferID: resolved.TransferID,
		})
	}
	if other.Resolved() {
		// The matching leg was already unlocked by an earlier attempt or a
		// queued replay; resolving again would be a double-resolve.
		log.Debug("matching leg already resolved", "otherTransfer", other.TransferID.Hex())
		e.metrics.RecordResolution("resolved")
		return &Outcome{Transfer: other}, nil
	}

	req := channel.ResolveTransferRequest{
		ChannelAddress: other.ChannelAddress,
		TransferID:     other.TransferID,
		ConditionType:  other.ConditionType,
		Resolver:       resolved.Resolver,
		Meta:           other.Meta,
	}
	unlocked, err := e.svc.ResolveTransfer(ctx, req)
	if err != nil {
		e.queueResolution(ctx, other.ChannelAddress, req, log)
		return nil, e.failResolution(&Error{
			Code:            CodeErrorResolvingTransfer,
			RoutingID:       routingID,
			ChannelAddress:  other.ChannelAddress,
			TransferID:      resolved.TransferID,
			OtherTransferID: other.TransferID,
			Cause:           err,
		})
	}

	log.Info("propagated resolution",
		"otherChannel", other.ChannelAddress.Hex(),
		"otherTransfer", other.TransferID.Hex())
	e.metrics.RecordResolution("resolved")
	return &Outcome{Transfer: unlocked}, nil
}

// findRouterLeg picks the leg of the payment where the router is the
// responder, excluding the leg that triggered the event.
func findRouterLeg(legs []*channel.Transfer, routerSigner common.Address, resolvedID common.Hash) *channel.Transfer {
	for _, leg := range legs {
		if leg == nil || leg.TransferID == resolvedID {
			continue
		}
		if leg.Responder == routerSigner {
			return leg
		}
	}
	return nil
}

func (e *Engine) queueResolution(ctx context.Context, channelAddress common.Address, req channel.ResolveTransferRequest, log *slog.Logger) {
	if e.queue == nil {
		log.Warn("no retry queue configured, dropping recoverable resolution")
		return
	}
	if err := e.queue.QueueResolution(ctx, channelAddress, req); err != nil {
		log.Error("failed to queue transfer resolution for retry", "error", err)
		return
	}
	e.metrics.RecordQueued("transfer_resolution")
	log.Info("queued transfer resolution for retry", "channel", channelAddress.Hex())
}

func (e *Engine) failResolution(ferr *Error) error {
	e.metrics.RecordResolution(string(ferr.Code))
	e.logger.Warn("resolution attempt failed", "code", string(ferr.Code), "error", ferr.Error())
	return ferr
}

// ReplayCreation re-issues a queued transfer creation with its original
// parameters. Used by the retry drain path once the counterparty is live.
func (e *Engine) ReplayCreation(ctx context.Context, req channel.CreateTransferRequest) error {
	release := e.locks.acquire(req.ChannelAddress, req.AssetID)
	defer release()
	if _, err := e.svc.ConditionalTransfer(ctx, req); err != nil {
		return err
	}
	e.metrics.RecordForward("forwarded")
	return nil
}

// ReplayResolution re-issues a queued transfer resolution with its original
// parameters.
func (e *Engine) ReplayResolution(ctx context.Context, req channel.ResolveTransferRequest) error {
	if _, err := e.svc.ResolveTransfer(ctx, req); err != nil {
		return err
	}
	e.metrics.RecordResolution("resolved")
	return nil
}
