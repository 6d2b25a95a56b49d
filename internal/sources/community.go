package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dropradar/internal/models"
)

// Community scrapes a community-maintained JSON feed of rumored and
// announced drops. Low-confidence data: everything here starts unverified.
type Community struct {
	url    string
	client *http.Client
}

func NewCommunity(url string, timeout time.Duration) *Community {
	return &Community{
		url:    url,
		client: newHTTPClient(timeout),
	}
}

func (c *Community) Name() string {
	return "community"
}

type communityItem struct {
	Project  string `json:"project"`
	Ticker   string `json:"ticker"`
	Contract string `json:"contract"`
	Chain    string `json:"chain"`
	Notes    string `json:"notes"`
	Link     string `json:"link"`
	Deadline string `json:"deadline"`
}

func (c *Community) Fetch(ctx context.Context) ([]models.Candidate, error) {
	if c.url == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build community feed request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("community feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("community feed returned status %d", resp.StatusCode)
	}

	var items []communityItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode community feed: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(items))
	for _, item := range items {
		if item.Project == "" {
			continue
		}

		blockchain := item.Chain
		if blockchain == "" {
			blockchain = "ethereum"
		}

		candidates = append(candidates, models.Candidate{
			Name:            item.Project,
			Symbol:          item.Ticker,
			ContractAddress: models.NormalizeAddress(item.Contract),
			Blockchain:      blockchain,
			Description:     item.Notes,
			EndDate:         parseDate(item.Deadline),
			Status:          models.StatusActive,
			Source:          models.SourceCommunity,
			SourceURL:       item.Link,
		})
	}

	return candidates, nil
}
