// Package rates supplies the router's pricing inputs: swap quotes for
// cross-asset and cross-chain forwards, and rebalance profiles describing the
// collateral float to restore when topping a channel up.
package rates

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SwapOracle converts an amount of one asset on one chain into the equivalent
// amount of another asset, possibly on another chain.
type SwapOracle interface {
	Quote(ctx context.Context, amount *big.Int, srcAsset common.Address, srcChain uint64, dstAsset common.Address, dstChain uint64) (*big.Int, error)
}

// ErrNoRate is returned when no rate is configured for the requested pair.
var ErrNoRate = errors.New("rates: no rate configured for pair")

type pairKey struct {
	srcAsset common.Address
	srcChain uint64
	dstAsset common.Address
	dstChain uint64
}

// StaticOracle quotes from a fixed in-memory rate table. Identity pairs
// (same asset and chain) always quote 1:1 without a table entry. Non-integer
// results truncate toward zero; the configured rate defines any finer
// rounding by choosing its numerator and denominator.
type StaticOracle struct {
	mu    sync.RWMutex
	rates map[pairKey]*big.Rat
}

// NewStaticOracle builds an empty rate table.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{rates: make(map[pairKey]*big.Rat)}
}

// SetRate installs the conversion rate for a directed pair. The rate string
// accepts decimal ("0.5") or fraction ("1/2") notation.
func (o *StaticOracle) SetRate(srcAsset common.Address, srcChain uint64, dstAsset common.Address, dstChain uint64, rate string) error {
	parsed, ok := new(big.Rat).SetString(strings.TrimSpace(rate))
	if !ok || parsed.Sign() <= 0 {
		return fmt.Errorf("rates: invalid rate %q", rate)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rates[pairKey{srcAsset, srcChain, dstAsset, dstChain}] = parsed
	return nil
}

// Quote converts the amount using the configured rate for the pair.
func (o *StaticOracle) Quote(_ context.Context, amount *big.Int, srcAsset common.Address, srcChain uint64, dstAsset common.Address, dstChain uint64) (*big.Int, error) {
	if amount == nil {
		return nil, fmt.Errorf("rates: amount required")
	}
	if srcAsset == dstAsset && srcChain == dstChain {
		return new(big.Int).Set(amount), nil
	}
	o.mu.RLock()
	rate, ok := o.rates[pairKey{srcAsset, srcChain, dstAsset, dstChain}]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s@%d -> %s@%d", ErrNoRate, srcAsset.Hex(), srcChain, dstAsset.Hex(), dstChain)
	}
	out := new(big.Int).Mul(amount, rate.Num())
	return out.Quo(out, rate.Denom()), nil
}
