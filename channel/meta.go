package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Hop is one entry of a transfer's routing path. Only the next hop is ever
// inspected by the router; optional fields default to the sender leg's values.
type Hop struct {
	Recipient        string          `json:"recipient"`
	RecipientAssetID *common.Address `json:"recipientAssetId,omitempty"`
	RecipientChainID *uint64         `json:"recipientChainId,omitempty"`
	RequireOnline    bool            `json:"requireOnline,omitempty"`
}

// TransferMeta carries the routing fields the router interprets plus an
// opaque passthrough bag for everything else. Passthrough keys are forwarded
// unchanged onto the recipient leg.
type TransferMeta struct {
	RoutingID        string
	Path             []Hop
	SenderIdentifier string
	Passthrough      map[string]json.RawMessage
}

const (
	metaKeyRoutingID = "routingId"
	metaKeyPath      = "path"
	metaKeySender    = "senderIdentifier"
)

// MarshalJSON flattens the known fields and the passthrough bag into a single
// object. Known fields win over passthrough duplicates.
func (m TransferMeta) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Passthrough)+3)
	for k, v := range m.Passthrough {
		out[k] = v
	}
	if m.RoutingID != "" {
		raw, err := json.Marshal(m.RoutingID)
		if err != nil {
			return nil, err
		}
		out[metaKeyRoutingID] = raw
	}
	if len(m.Path) > 0 {
		raw, err := json.Marshal(m.Path)
		if err != nil {
			return nil, err
		}
		out[metaKeyPath] = raw
	}
	if m.SenderIdentifier != "" {
		raw, err := json.Marshal(m.SenderIdentifier)
		if err != nil {
			return nil, err
		}
		out[metaKeySender] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the object into interpreted fields and passthrough.
func (m *TransferMeta) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode transfer meta: %w", err)
	}
	*m = TransferMeta{}
	if v, ok := raw[metaKeyRoutingID]; ok {
		if err := json.Unmarshal(v, &m.RoutingID); err != nil {
			return fmt.Errorf("decode routingId: %w", err)
		}
		delete(raw, metaKeyRoutingID)
	}
	if v, ok := raw[metaKeyPath]; ok {
		if err := json.Unmarshal(v, &m.Path); err != nil {
			return fmt.Errorf("decode path: %w", err)
		}
		delete(raw, metaKeyPath)
	}
	if v, ok := raw[metaKeySender]; ok {
		if err := json.Unmarshal(v, &m.SenderIdentifier); err != nil {
			return fmt.Errorf("decode senderIdentifier: %w", err)
		}
		delete(raw, metaKeySender)
	}
	if len(raw) > 0 {
		m.Passthrough = raw
	}
	return nil
}

// Intent is the resolved routing decision for the next hop, with the sender
// leg's asset and chain applied as defaults.
type Intent struct {
	Recipient     string
	AssetID       common.Address
	ChainID       uint64
	RequireOnline bool
}

// NextHop returns the first path entry with a non-empty recipient. The second
// return is false when the meta carries no usable next hop, which callers
// treat as "nothing to forward", not an error.
func (m TransferMeta) NextHop() (Hop, bool) {
	if len(m.Path) == 0 {
		return Hop{}, false
	}
	hop := m.Path[0]
	hop.Recipient = strings.TrimSpace(hop.Recipient)
	if hop.Recipient == "" {
		return Hop{}, false
	}
	return hop, true
}

// Resolve applies the sender leg's asset and chain as defaults for the hop's
// optional fields.
func (h Hop) Resolve(senderAsset common.Address, senderChain uint64) Intent {
	intent := Intent{
		Recipient:     h.Recipient,
		AssetID:       senderAsset,
		ChainID:       senderChain,
		RequireOnline: h.RequireOnline,
	}
	if h.RecipientAssetID != nil {
		intent.AssetID = *h.RecipientAssetID
	}
	if h.RecipientChainID != nil {
		intent.ChainID = *h.RecipientChainID
	}
	return intent
}

// ForwardedCopy returns the meta to attach to the recipient leg: routing id
// and passthrough preserved, the consumed hop dropped, and the sender-leg
// counterparty recorded so the recipient can learn who paid.
func (m TransferMeta) ForwardedCopy(senderIdentifier string) TransferMeta {
	out := TransferMeta{
		RoutingID:        m.RoutingID,
		SenderIdentifier: senderIdentifier,
	}
	if len(m.Path) > 1 {
		out.Path = append([]Hop(nil), m.Path[1:]...)
	}
	if len(m.Passthrough) > 0 {
		out.Passthrough = make(map[string]json.RawMessage, len(m.Passthrough))
		for k, v := range m.Passthrough {
			out.Passthrough[k] = v
		}
	}
	return out
}
