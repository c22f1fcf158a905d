package forwarding

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TtheBC01/vector/channel"
)

var (
	senderLegID = common.HexToHash("0xE1")
	recvLegID   = common.HexToHash("0xE2")
)

// senderLeg is the incoming transfer where the router is the responder; it is
// the leg a resolution on the outgoing side must unlock.
func senderLeg(resolver map[string]any) *channel.Transfer {
	return &channel.Transfer{
		TransferID:       senderLegID,
		ChannelAddress:   senderChanAddr,
		AssetID:          assetX,
		Amount:           big.NewInt(100),
		Initiator:        aliceSigner,
		Responder:        routerSigner,
		ConditionType:    "HashlockTransfer",
		ConditionDetails: map[string]any{"lockHash": "0x11"},
		Resolver:         resolver,
		Meta:             channel.TransferMeta{RoutingID: "0xabc"},
	}
}

// recipientLeg is the outgoing transfer the router created; the recipient
// resolving it triggers the propagation back to the sender leg.
func recipientLeg(resolver map[string]any) *channel.Transfer {
	return &channel.Transfer{
		TransferID:       recvLegID,
		ChannelAddress:   recvChanAddr,
		AssetID:          assetX,
		Amount:           big.NewInt(100),
		Initiator:        routerSigner,
		Responder:        bobSigner,
		ConditionType:    "HashlockTransfer",
		ConditionDetails: map[string]any{"lockHash": "0x11"},
		Resolver:         resolver,
		Meta:             channel.TransferMeta{RoutingID: "0xabc"},
	}
}

func TestResolutionPropagatesToSenderLeg(t *testing.T) {
	f := newFixture(t)
	preimage := map[string]any{"preImage": "0x22"}
	f.svc.routing["0xabc"] = []*channel.Transfer{senderLeg(nil), recipientLeg(preimage)}

	outcome, err := f.engine.ForwardTransferResolution(context.Background(), channel.TransferResolvedEvent{
		Transfer: recipientLeg(preimage),
	})
	if err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if outcome.IsSkipped() || outcome.Transfer == nil {
		t.Fatalf("expected propagated resolution, got %+v", outcome)
	}
	if len(f.svc.resolves) != 1 {
		t.Fatalf("expected one resolve call, got %d", len(f.svc.resolves))
	}
	req := f.svc.resolves[0]
	if req.TransferID != senderLegID || req.ChannelAddress != senderChanAddr {
		t.Fatalf("resolved wrong leg: %+v", req)
	}
	if req.Resolver["preImage"] != "0x22" {
		t.Fatalf("resolver not carried over: %+v", req.Resolver)
	}
	if req.ConditionType != "HashlockTransfer" {
		t.Fatalf("condition type: %q", req.ConditionType)
	}
}

func TestResolutionSkipsWithoutResolver(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.engine.ForwardTransferResolution(context.Background(), channel.TransferResolvedEvent{
		Transfer: recipientLeg(nil),
	})
	if err != nil {
		t.Fatalf("skip must not error: %v", err)
	}
	if outcome.Skipped != SkipNoResolver {
		t.Fatalf("skip reason: %q", outcome.Skipped)
	}
	if f.svc.calls != 0 {
		t.Fatalf("expected zero downstream calls, got %d", f.svc.calls)
	}
}

func TestResolutionSkipsFinalRecipientLeg(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.engine.ForwardTransferResolution(context.Background(), channel.TransferResolvedEvent{
		Transfer: senderLeg(map[string]any{"preImage": "0x22"}),
	})
	if err != nil {
		t.Fatalf("skip must not error: %v", err)
	}
	if outcome.Skipped != SkipFinalRecipient {
		t.Fatalf("skip reason: %q", outcome.Skipped)
	}
	if f.svc.calls != 0 {
		t.Fatalf("expected zero downstream calls, got %d", f.svc.calls)
	}
}

func TestResolutionLookupFailures(t *testing.T) {
	preimage := map[string]any{"preImage": "0x22"}
	t.Run("routing lookup fails", func(t *testing.T) {
		f := newFixture(t)
		f.svc.routingErr = &channel.ServiceError{Message: "boom", Reason: channel.ReasonUnavailable}
		_, err := f.engine.ForwardTransferResolution(context.Background(), channel.TransferResolvedEvent{
			Transfer: recipientLeg(preimage),
		})
		if got := CodeOf(err); got != CodeIncomingChannelNotFound {
			t.Fatalf("code: %q", got)
		}
	})
	t.Run("no matching router leg", func(t *testing.T) {
		f := newFixture(t)
		// Only the triggering leg exists under the routing id.
		f.svc.routing["0xabc"] = []*channel.Transfer{recipientLeg(preimage)}
		_, err := f.engine.ForwardTransferResolution(context.Background(), channel.TransferResolvedEvent{
			Transfer: recipientLeg(preimage),
		})
		if got := CodeOf(err); got != CodeIncomingChannelNotFound {
			t.Fatalf("code: %q", got)
		}
	})
}

func TestResolutionFailureAlwaysQueues(t *testing.T) {
	f := newFixture(t)
	preimage := map[string]any{"preImage": "0x22"}
	f.svc.routing["0xabc"] = []*channel.Transfer{senderLeg(nil), recipientLeg(preimage)}
	f.svc.resolveErr = &channel.ServiceError{Message: "boom", Reason: channel.ReasonUnavailable}

	_, err := f.engine.ForwardTransferResolution(context.Background(), channel.TransferResolvedEvent{
		Transfer: recipientLeg(preimage),
	})
	if got := CodeOf(err); got != CodeErrorResolvingTransfer {
		t.Fatalf("code: %q", got)
	}
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ferr.TransferID != recvLegID || ferr.OtherTransferID != senderLegID {
		t.Fatalf("error must name both legs: %+v", ferr)
	}
	if len(f.queue.resolutions) != 1 {
		t.Fatalf("expected exactly one queued resolution, got %d", len(f.queue.resolutions))
	}
	if f.queue.resolutions[0].TransferID != senderLegID {
		t.Fatalf("queued wrong leg: %+v", f.queue.resolutions[0])
	}
}

func TestResolutionAlreadyResolvedLegSucceedsWithoutCall(t *testing.T) {
	f := newFixture(t)
	preimage := map[string]any{"preImage": "0x22"}
	f.svc.routing["0xabc"] = []*channel.Transfer{senderLeg(preimage), recipientLeg(preimage)}

	outcome, err := f.engine.ForwardTransferResolution(context.Background(), channel.TransferResolvedEvent{
		Transfer: recipientLeg(preimage),
	})
	if err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if outcome.Transfer == nil || outcome.Transfer.TransferID != senderLegID {
		t.Fatalf("expected the already-resolved leg, got %+v", outcome)
	}
	if len(f.svc.resolves) != 0 {
		t.Fatalf("must not resolve an already-resolved leg")
	}
}
