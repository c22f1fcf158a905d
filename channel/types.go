// Package channel models the bilateral state-channel ledger the router
// forwards payments across: channels, conditional transfers, and the routing
// metadata attached to them. The authoritative ledger lives in the channel
// service; these types mirror its read model.
package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer is a locked conditional payment inside a single channel. A transfer
// is immutable except for the one-time attachment of a resolver once the
// unlock proof is presented.
type Transfer struct {
	TransferID       common.Hash    `json:"transferId"`
	ChannelAddress   common.Address `json:"channelAddress"`
	AssetID          common.Address `json:"assetId"`
	Amount           *big.Int       `json:"amount"`
	Initiator        common.Address `json:"initiator"`
	Responder        common.Address `json:"responder"`
	ConditionType    string         `json:"conditionType"`
	ConditionDetails map[string]any `json:"conditionDetails,omitempty"`
	Resolver         map[string]any `json:"resolver,omitempty"`
	Meta             TransferMeta   `json:"meta"`
}

// Resolved reports whether the unlock proof has been attached.
func (t *Transfer) Resolved() bool {
	return t != nil && len(t.Resolver) > 0
}

// RoutingID returns the correlation id linking the two legs of a payment.
func (t *Transfer) RoutingID() string {
	if t == nil {
		return ""
	}
	return t.Meta.RoutingID
}

// Balance holds the amount owed to each participant for one asset, in
// canonical (alice, bob) order.
type Balance struct {
	ToAlice *big.Int `json:"toAlice"`
	ToBob   *big.Int `json:"toBob"`
}

// Channel is the router's view of one bilateral ledger. Participants carry
// both a signing address (used on transfers) and a public identifier (used
// for routing and counterparty lookups).
type Channel struct {
	Address         common.Address   `json:"channelAddress"`
	Alice           common.Address   `json:"alice"`
	Bob             common.Address   `json:"bob"`
	AliceIdentifier string           `json:"aliceIdentifier"`
	BobIdentifier   string           `json:"bobIdentifier"`
	ChainID         uint64           `json:"chainId"`
	Assets          []common.Address `json:"assetIds"`
	Balances        []Balance        `json:"balances"`
}

// AssetIndex returns the position of the asset in the channel's asset list,
// or -1 when the channel has never held it.
func (c *Channel) AssetIndex(asset common.Address) int {
	if c == nil {
		return -1
	}
	for i, a := range c.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

// BalanceOf returns the amount the channel owes the given participant for the
// asset. An asset the channel has never held balances to zero. The returned
// value is a copy.
func (c *Channel) BalanceOf(asset, participant common.Address) *big.Int {
	idx := c.AssetIndex(asset)
	if idx < 0 || idx >= len(c.Balances) {
		return big.NewInt(0)
	}
	bal := c.Balances[idx]
	switch participant {
	case c.Alice:
		return cloneAmount(bal.ToAlice)
	case c.Bob:
		return cloneAmount(bal.ToBob)
	default:
		return big.NewInt(0)
	}
}

// SignerFor maps a participant identifier to its signing address.
func (c *Channel) SignerFor(identifier string) (common.Address, bool) {
	if c == nil {
		return common.Address{}, false
	}
	switch identifier {
	case c.AliceIdentifier:
		return c.Alice, true
	case c.BobIdentifier:
		return c.Bob, true
	default:
		return common.Address{}, false
	}
}

// CounterpartyIdentifier returns the identifier of the other participant.
func (c *Channel) CounterpartyIdentifier(selfIdentifier string) string {
	if c == nil {
		return ""
	}
	if selfIdentifier == c.AliceIdentifier {
		return c.BobIdentifier
	}
	return c.AliceIdentifier
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
