package rates

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// RebalanceProfile describes the collateral float to restore for a
// channel/asset when a just-in-time deposit is issued.
type RebalanceProfile struct {
	Target *big.Int
}

// ProfileSource resolves the rebalance profile for a channel and asset.
type ProfileSource interface {
	GetProfile(ctx context.Context, channelAddress, assetID common.Address) (RebalanceProfile, error)
}

// ErrNoProfile is returned when neither a channel-specific nor an
// asset-default profile is configured.
var ErrNoProfile = errors.New("rates: no rebalance profile configured")

type profileKey struct {
	channel common.Address
	asset   common.Address
}

// ConfigProfiles serves rebalance profiles from static configuration. A
// channel-specific entry overrides the asset default (keyed by the zero
// channel address).
type ConfigProfiles struct {
	mu       sync.RWMutex
	profiles map[profileKey]*big.Int
}

// NewConfigProfiles builds an empty profile table.
func NewConfigProfiles() *ConfigProfiles {
	return &ConfigProfiles{profiles: make(map[profileKey]*big.Int)}
}

// SetDefault installs the asset-wide default target.
func (p *ConfigProfiles) SetDefault(assetID common.Address, target *big.Int) error {
	return p.set(common.Address{}, assetID, target)
}

// SetChannel installs a channel-specific target override.
func (p *ConfigProfiles) SetChannel(channelAddress, assetID common.Address, target *big.Int) error {
	if (channelAddress == common.Address{}) {
		return fmt.Errorf("rates: channel address required")
	}
	return p.set(channelAddress, assetID, target)
}

func (p *ConfigProfiles) set(channelAddress, assetID common.Address, target *big.Int) error {
	if target == nil || target.Sign() < 0 {
		return fmt.Errorf("rates: profile target must be non-negative")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profileKey{channelAddress, assetID}] = new(big.Int).Set(target)
	return nil
}

// GetProfile resolves the profile, preferring a channel-specific entry.
func (p *ConfigProfiles) GetProfile(_ context.Context, channelAddress, assetID common.Address) (RebalanceProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if target, ok := p.profiles[profileKey{channelAddress, assetID}]; ok {
		return RebalanceProfile{Target: new(big.Int).Set(target)}, nil
	}
	if target, ok := p.profiles[profileKey{common.Address{}, assetID}]; ok {
		return RebalanceProfile{Target: new(big.Int).Set(target)}, nil
	}
	return RebalanceProfile{}, fmt.Errorf("%w: channel %s asset %s", ErrNoProfile, channelAddress.Hex(), assetID.Hex())
}
