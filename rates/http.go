package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HTTPOracle fetches quotes from an external swap-rate service. The service
// owns the rounding policy; the returned amount is used verbatim.
type HTTPOracle struct {
	client   *http.Client
	endpoint string
}

// NewHTTPOracle builds an oracle against the given quote endpoint.
func NewHTTPOracle(client *http.Client, endpoint string) *HTTPOracle {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPOracle{client: client, endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/")}
}

type quoteResponse struct {
	Amount string `json:"amount"`
}

// Quote requests the destination amount for the pair.
func (o *HTTPOracle) Quote(ctx context.Context, amount *big.Int, srcAsset common.Address, srcChain uint64, dstAsset common.Address, dstChain uint64) (*big.Int, error) {
	if o == nil || o.endpoint == "" {
		return nil, fmt.Errorf("rates: oracle endpoint not configured")
	}
	if amount == nil {
		return nil, fmt.Errorf("rates: amount required")
	}
	params := url.Values{}
	params.Set("amount", amount.String())
	params.Set("fromAssetId", srcAsset.Hex())
	params.Set("fromChainId", strconv.FormatUint(srcChain, 10))
	params.Set("toAssetId", dstAsset.Hex())
	params.Set("toChainId", strconv.FormatUint(dstChain, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("rates: build quote request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates: fetch quote: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates: quote endpoint returned %d", resp.StatusCode)
	}
	var payload quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("rates: decode quote: %w", err)
	}
	quoted, ok := new(big.Int).SetString(strings.TrimSpace(payload.Amount), 10)
	if !ok || quoted.Sign() < 0 {
		return nil, fmt.Errorf("rates: invalid quoted amount %q", payload.Amount)
	}
	return quoted, nil
}
