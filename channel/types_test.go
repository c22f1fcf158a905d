package channel

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testChannel() *Channel {
	return &Channel{
		Address:         common.HexToAddress("0xC0"),
		Alice:           common.HexToAddress("0xA1"),
		Bob:             common.HexToAddress("0xB1"),
		AliceIdentifier: "vectorAlice",
		BobIdentifier:   "vectorBob",
		ChainID:         1337,
		Assets:          []common.Address{common.HexToAddress("0x01")},
		Balances: []Balance{
			{ToAlice: big.NewInt(70), ToBob: big.NewInt(30)},
		},
	}
}

func TestBalanceOf(t *testing.T) {
	ch := testChannel()
	asset := common.HexToAddress("0x01")
	if got := ch.BalanceOf(asset, ch.Alice); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("alice balance: %s", got)
	}
	if got := ch.BalanceOf(asset, ch.Bob); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("bob balance: %s", got)
	}
	// Unknown asset and unknown participant both balance to zero.
	if got := ch.BalanceOf(common.HexToAddress("0x02"), ch.Alice); got.Sign() != 0 {
		t.Fatalf("unknown asset balance: %s", got)
	}
	if got := ch.BalanceOf(asset, common.HexToAddress("0xEE")); got.Sign() != 0 {
		t.Fatalf("stranger balance: %s", got)
	}
	// Returned value is a copy.
	ch.BalanceOf(asset, ch.Alice).SetInt64(0)
	if got := ch.BalanceOf(asset, ch.Alice); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("balance aliased: %s", got)
	}
}

func TestSignerForAndCounterparty(t *testing.T) {
	ch := testChannel()
	if signer, ok := ch.SignerFor("vectorBob"); !ok || signer != ch.Bob {
		t.Fatalf("bob signer lookup failed")
	}
	if _, ok := ch.SignerFor("vectorMallory"); ok {
		t.Fatalf("unknown identifier must not resolve")
	}
	if got := ch.CounterpartyIdentifier("vectorAlice"); got != "vectorBob" {
		t.Fatalf("counterparty of alice: %s", got)
	}
	if got := ch.CounterpartyIdentifier("vectorBob"); got != "vectorAlice" {
		t.Fatalf("counterparty of bob: %s", got)
	}
}

func TestServiceErrorClassification(t *testing.T) {
	timeout := &ServiceError{Message: "no response", Reason: ReasonTimeout}
	wrapped := fmt.Errorf("create transfer: %w", timeout)
	if !IsTimeout(wrapped) {
		t.Fatalf("wrapped timeout not detected")
	}
	if IsNotFound(wrapped) {
		t.Fatalf("timeout misclassified as not found")
	}
	if IsTimeout(errors.New("plain")) {
		t.Fatalf("plain error misclassified")
	}
	notFound := &ServiceError{Message: "no channel", Reason: ReasonNotFound, Cause: errors.New("404")}
	if !IsNotFound(notFound) {
		t.Fatalf("not-found not detected")
	}
	if notFound.Unwrap() == nil {
		t.Fatalf("cause not unwrapped")
	}
}

func TestTransferResolved(t *testing.T) {
	transfer := &Transfer{}
	if transfer.Resolved() {
		t.Fatalf("empty resolver must not count as resolved")
	}
	transfer.Resolver = map[string]any{"preImage": "0x01"}
	if !transfer.Resolved() {
		t.Fatalf("resolver attached but not resolved")
	}
}
