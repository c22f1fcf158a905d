package channel

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DepositRequest funds the router's side of a channel with additional
// collateral for one asset.
type DepositRequest struct {
	ChannelAddress common.Address `json:"channelAddress"`
	AssetID        common.Address `json:"assetId"`
	Amount         *big.Int       `json:"amount"`
}

// DepositReceipt acknowledges a completed deposit.
type DepositReceipt struct {
	ChannelAddress common.Address `json:"channelAddress"`
	TxHash         common.Hash    `json:"txHash"`
}

// CreateTransferRequest creates a conditional transfer in a channel.
type CreateTransferRequest struct {
	ChannelAddress      common.Address `json:"channelAddress"`
	AssetID             common.Address `json:"assetId"`
	Amount              *big.Int       `json:"amount"`
	RecipientIdentifier string         `json:"recipient"`
	ConditionType       string         `json:"conditionType"`
	ConditionDetails    map[string]any `json:"conditionDetails,omitempty"`
	Meta                TransferMeta   `json:"meta"`
	ChainID             uint64         `json:"chainId"`
}

// ResolveTransferRequest unlocks a conditional transfer with its proof.
type ResolveTransferRequest struct {
	ChannelAddress common.Address `json:"channelAddress"`
	TransferID     common.Hash    `json:"transferId"`
	ConditionType  string         `json:"conditionType"`
	Resolver       map[string]any `json:"resolver"`
	Meta           TransferMeta   `json:"meta"`
}

// Service is the channel state machine the router drives. The router never
// mutates channel state directly: deposits, transfer creation, and transfer
// resolution all go through these calls. Implementations return
// *ServiceError for structured failures so callers can classify timeouts and
// missing records.
type Service interface {
	GetStateChannel(ctx context.Context, address common.Address) (*Channel, error)
	GetStateChannelByParticipants(ctx context.Context, selfIdentifier, otherIdentifier string, chainID uint64) (*Channel, error)
	GetTransfersByRoutingID(ctx context.Context, routingID string) ([]*Transfer, error)
	Deposit(ctx context.Context, req DepositRequest, chainID uint64) (*DepositReceipt, error)
	ConditionalTransfer(ctx context.Context, req CreateTransferRequest) (*Transfer, error)
	ResolveTransfer(ctx context.Context, req ResolveTransferRequest) (*Transfer, error)
}

// TransferCreatedEvent announces a conditional transfer landing in a channel.
type TransferCreatedEvent struct {
	Transfer      *Transfer `json:"transfer"`
	ConditionType string    `json:"conditionType"`
}

// TransferResolvedEvent announces an unlock proof landing on a transfer.
type TransferResolvedEvent struct {
	ChannelAddress common.Address `json:"channelAddress"`
	Transfer       *Transfer      `json:"transfer"`
	ConditionType  string         `json:"conditionType"`
}
