package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SourceVerifier answers whether a block-explorer-style service has verified
// source code for a contract. Optional: a nil verifier leaves records
// unverified.
type SourceVerifier interface {
	IsVerified(ctx context.Context, address, blockchain string) (bool, error)
}

// ExplorerClient queries an etherscan-compatible API for contract source
// presence.
type ExplorerClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewExplorerClient creates an explorer client. baseURL is the API root
// (e.g. https://api.etherscan.io/api).
func NewExplorerClient(baseURL, apiKey string) *ExplorerClient {
	return &ExplorerClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type explorerResponse struct {
	Status string `json:"status"`
	Result []struct {
		SourceCode string `json:"SourceCode"`
	} `json:"result"`
}

// IsVerified reports whether the explorer has source code on file for the
// address. Explorer outages are errors; the caller degrades to unverified.
func (e *ExplorerClient) IsVerified(ctx context.Context, address, blockchain string) (bool, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", address)
	if e.apiKey != "" {
		params.Set("apikey", e.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build explorer request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var parsed explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("failed to decode explorer response: %w", err)
	}

	if len(parsed.Result) == 0 {
		return false, nil
	}

	return parsed.Result[0].SourceCode != "", nil
}
