package forwarding

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Code classifies a terminal coordinator failure. Codes are stable,
// machine-readable, and surfaced alongside the triggering context so an
// operator can tell a funding problem from a counterparty outage.
type Code string

const (
	// Creation path.
	CodeSenderChannelNotFound       Code = "SenderChannelNotFound"
	CodeRecipientChannelNotFound    Code = "RecipientChannelNotFound"
	CodeUnableToCalculateSwap       Code = "UnableToCalculateSwap"
	CodeUnableToGetRebalanceProfile Code = "UnableToGetRebalanceProfile"
	CodeUnableToCollateralize       Code = "UnableToCollateralize"
	CodeErrorForwardingTransfer     Code = "ErrorForwardingTransfer"

	// Resolution path.
	CodeIncomingChannelNotFound Code = "IncomingChannelNotFound"
	CodeErrorResolvingTransfer  Code = "ErrorResolvingTransfer"
)

// Error is the structured failure value every coordinator operation returns
// on a terminal failure. The zero-valued context fields are omitted from the
// rendered message.
type Error struct {
	Code            Code
	RoutingID       string
	ChannelAddress  common.Address
	TransferID      common.Hash
	OtherTransferID common.Hash
	Cause           error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("forwarding: %s", e.Code)
	if e.RoutingID != "" {
		msg += fmt.Sprintf(" routingId=%s", e.RoutingID)
	}
	if (e.ChannelAddress != common.Address{}) {
		msg += fmt.Sprintf(" channel=%s", e.ChannelAddress.Hex())
	}
	if (e.TransferID != common.Hash{}) {
		msg += fmt.Sprintf(" transfer=%s", e.TransferID.Hex())
	}
	if (e.OtherTransferID != common.Hash{}) {
		msg += fmt.Sprintf(" otherTransfer=%s", e.OtherTransferID.Hex())
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// CodeOf extracts the failure code from an error chain, or "" when the error
// is not a coordinator failure.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
