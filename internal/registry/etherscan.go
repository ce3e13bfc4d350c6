package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/httpx"
)

const (
	DefaultEtherscanEndpoint = "https://api.etherscan.io/api"

	abiFetchAttempts = 5
	abiFetchDelay    = time.Second
)

// ABIFetcher pulls verified contract ABIs from a contract-explorer API.
// Deployed ABIs are immutable, so successful fetches are cached for the
// process lifetime.
type ABIFetcher struct {
	http     *httpx.Client
	endpoint string
	delay    time.Duration
	cache    *gocache.Cache
}

func NewABIFetcher(httpClient *httpx.Client) *ABIFetcher {
	return &ABIFetcher{
		http:     httpClient,
		endpoint: DefaultEtherscanEndpoint,
		delay:    abiFetchDelay,
		cache:    gocache.New(gocache.NoExpiration, gocache.NoExpiration),
	}
}

type etherscanResponse struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// FetchContractABI returns the parsed ABI document for a contract address,
// retrying up to five times with a fixed delay between attempts.
func (f *ABIFetcher) FetchContractABI(ctx context.Context, contractAddress string) (json.RawMessage, error) {
	if cached, ok := f.cache.Get(contractAddress); ok {
		return cached.(json.RawMessage), nil
	}

	url := fmt.Sprintf("%s?module=contract&action=getabi&address=%s", f.endpoint, contractAddress)

	var lastMsg string
	for attempt := 0; attempt < abiFetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, clierr.Wrap(clierr.CodeUnavailable, "abi fetch cancelled", ctx.Err())
			case <-time.After(f.delay):
			}
		}

		var resp etherscanResponse
		if err := f.http.GetJSON(ctx, url, &resp); err != nil {
			return nil, err
		}
		if resp.Status == "0" {
			lastMsg = resp.Result
			continue
		}

		var parsed json.RawMessage
		if err := json.Unmarshal([]byte(resp.Result), &parsed); err != nil {
			return nil, clierr.Wrap(clierr.CodeDecode, fmt.Sprintf("abi for contract %s is not valid JSON", contractAddress), err)
		}
		f.cache.Set(contractAddress, parsed, gocache.NoExpiration)
		return parsed, nil
	}

	return nil, clierr.New(clierr.CodeUnavailable,
		fmt.Sprintf("could not fetch abi for contract %s: %s", contractAddress, lastMsg))
}
