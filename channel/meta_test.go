package channel

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestTransferMetaRoundTripPreservesPassthrough(t *testing.T) {
	raw := []byte(`{"routingId":"0xabc","path":[{"recipient":"vectorBob"}],"invoice":"inv-17","note":{"memo":"coffee"}}`)
	var meta TransferMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal meta: %v", err)
	}
	if meta.RoutingID != "0xabc" {
		t.Fatalf("unexpected routingId: %s", meta.RoutingID)
	}
	if len(meta.Path) != 1 || meta.Path[0].Recipient != "vectorBob" {
		t.Fatalf("unexpected path: %+v", meta.Path)
	}
	if len(meta.Passthrough) != 2 {
		t.Fatalf("expected 2 passthrough keys, got %d", len(meta.Passthrough))
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("re-decode meta: %v", err)
	}
	for _, key := range []string{"routingId", "path", "invoice", "note"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing %q after round trip", key)
		}
	}
}

func TestNextHopMissingPath(t *testing.T) {
	meta := TransferMeta{RoutingID: "0xabc"}
	if _, ok := meta.NextHop(); ok {
		t.Fatalf("expected no hop for empty path")
	}
	meta.Path = []Hop{{Recipient: "   "}}
	if _, ok := meta.NextHop(); ok {
		t.Fatalf("expected no hop for blank recipient")
	}
}

func TestHopResolveDefaults(t *testing.T) {
	senderAsset := common.HexToAddress("0x01")
	hop := Hop{Recipient: "vectorBob"}
	intent := hop.Resolve(senderAsset, 1337)
	if intent.AssetID != senderAsset || intent.ChainID != 1337 {
		t.Fatalf("defaults not applied: %+v", intent)
	}
	if intent.RequireOnline {
		t.Fatalf("requireOnline should default false")
	}

	otherAsset := common.HexToAddress("0x02")
	otherChain := uint64(100)
	hop = Hop{Recipient: "vectorBob", RecipientAssetID: &otherAsset, RecipientChainID: &otherChain, RequireOnline: true}
	intent = hop.Resolve(senderAsset, 1337)
	if intent.AssetID != otherAsset || intent.ChainID != otherChain || !intent.RequireOnline {
		t.Fatalf("overrides not applied: %+v", intent)
	}
}

func TestForwardedCopyDropsConsumedHop(t *testing.T) {
	meta := TransferMeta{
		RoutingID: "0xabc",
		Path: []Hop{
			{Recipient: "vectorBob"},
			{Recipient: "vectorCarol"},
		},
		Passthrough: map[string]json.RawMessage{"invoice": json.RawMessage(`"inv-17"`)},
	}
	forwarded := meta.ForwardedCopy("vectorAlice")
	if forwarded.RoutingID != "0xabc" {
		t.Fatalf("routing id must carry over")
	}
	if forwarded.SenderIdentifier != "vectorAlice" {
		t.Fatalf("sender identifier not set: %q", forwarded.SenderIdentifier)
	}
	if len(forwarded.Path) != 1 || forwarded.Path[0].Recipient != "vectorCarol" {
		t.Fatalf("consumed hop not dropped: %+v", forwarded.Path)
	}
	if string(forwarded.Passthrough["invoice"]) != `"inv-17"` {
		t.Fatalf("passthrough not preserved")
	}
	// Mutating the copy must not leak into the source.
	forwarded.Passthrough["extra"] = json.RawMessage(`1`)
	if _, ok := meta.Passthrough["extra"]; ok {
		t.Fatalf("forwarded copy shares passthrough map with source")
	}
}
