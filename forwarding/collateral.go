package forwarding

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TtheBC01/vector/rates"
)

// NeedsCollateral reports whether the router's current balance cannot cover
// the required forward amount.
func NeedsCollateral(currentBalance, requiredAmount *big.Int) bool {
	if requiredAmount == nil {
		return false
	}
	if currentBalance == nil {
		return requiredAmount.Sign() > 0
	}
	return currentBalance.Cmp(requiredAmount) < 0
}

// DepositAmount computes the just-in-time deposit: the immediate requirement
// plus the profile's target float, so a single deposit covers the forward and
// restores the configured liquidity in one channel update.
func DepositAmount(requiredAmount *big.Int, profile rates.RebalanceProfile) *big.Int {
	out := big.NewInt(0)
	if requiredAmount != nil {
		out.Set(requiredAmount)
	}
	if profile.Target != nil {
		out.Add(out, profile.Target)
	}
	return out
}

type lockKey struct {
	channel common.Address
	asset   common.Address
}

// channelAssetLocks serializes the collateral check-then-deposit sequence per
// (channel, asset). Two forwards racing on the same pair would otherwise both
// observe a stale balance and double-deposit, or both skip a needed deposit.
type channelAssetLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

func newChannelAssetLocks() *channelAssetLocks {
	return &channelAssetLocks{locks: make(map[lockKey]*sync.Mutex)}
}

// acquire locks the pair and returns the release function.
func (l *channelAssetLocks) acquire(channelAddress, assetID common.Address) func() {
	key := lockKey{channelAddress, assetID}
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
