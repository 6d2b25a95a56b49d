package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dropradar/internal/models"
)

// GitHub searches code hosting for freshly published airdrop contract repos.
// The weakest signal of all sources: no contract address, just project names
// worth cross-referencing once on-chain activity shows up.
type GitHub struct {
	searchURL string
	token     string
	client    *http.Client
}

func NewGitHub(searchURL, token string, timeout time.Duration) *GitHub {
	return &GitHub{
		searchURL: searchURL,
		token:     token,
		client:    newHTTPClient(timeout),
	}
}

func (g *GitHub) Name() string {
	return "github"
}

type githubRepo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Homepage    string `json:"homepage"`
}

type githubSearchResponse struct {
	Items []githubRepo `json:"items"`
}

func (g *GitHub) Fetch(ctx context.Context) ([]models.Candidate, error) {
	if g.searchURL == "" {
		return nil, nil
	}

	// Only repos pushed in the last week: stale repos churn the sync for
	// nothing.
	since := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	params := url.Values{}
	params.Set("q", fmt.Sprintf("airdrop claim contract in:name,description pushed:>%s", since))
	params.Set("sort", "updated")
	params.Set("per_page", "30")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build github search request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github search returned status %d", resp.StatusCode)
	}

	var parsed githubSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode github search response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(parsed.Items))
	for _, repo := range parsed.Items {
		if repo.Name == "" {
			continue
		}

		candidates = append(candidates, models.Candidate{
			Name:        projectNameFromRepo(repo.Name),
			Symbol:      strings.ToUpper(projectNameFromRepo(repo.Name)),
			Blockchain:  "ethereum",
			Description: repo.Description,
			Website:     repo.Homepage,
			Status:      models.StatusUpcoming,
			Source:      models.SourceGitHub,
			SourceURL:   repo.HTMLURL,
		})
	}

	return candidates, nil
}

// projectNameFromRepo strips the repo-name noise ("foo-airdrop-contracts")
// down to the likely project name.
func projectNameFromRepo(name string) string {
	cleaned := name
	for _, suffix := range []string{"-airdrop", "-claim", "-contracts", "-contract", "_airdrop", "_claim"} {
		cleaned = strings.TrimSuffix(cleaned, suffix)
	}
	if cleaned == "" {
		return name
	}
	return cleaned
}
