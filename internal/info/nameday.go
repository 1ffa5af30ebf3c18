package info

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// NamedayClient fetches the names celebrated today from a name-day API.
// The endpoint takes the month and day as query parameters and returns a
// JSON body with a "names" list.
type NamedayClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewNamedayClient creates a name-day provider. An empty baseURL disables
// the lookup: Nameday then returns an empty string without error, so the
// info report simply omits the line.
func NewNamedayClient(baseURL string, logger *slog.Logger) *NamedayClient {
	return &NamedayClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		logger:     logger.With("subsystem", "nameday"),
	}
}

type namedayResponse struct {
	Names []string `json:"names"`
}

// Nameday returns the spoken name-day line for the given date.
func (c *NamedayClient) Nameday(ctx context.Context, t time.Time) (string, error) {
	if c.baseURL == "" {
		return "", nil
	}

	url := fmt.Sprintf("%s?month=%d&day=%d", c.baseURL, int(t.Month()), t.Day())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("nameday: creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("nameday: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nameday: service returned status %d", resp.StatusCode)
	}

	var nr namedayResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return "", fmt.Errorf("nameday: decoding response: %w", err)
	}
	if len(nr.Names) == 0 {
		return "", nil
	}
	return fmt.Sprintf("Today is the name day of %s.", joinNames(nr.Names)), nil
}

func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// Providers bundles the weather and name-day clients behind the session
// controller's info interface.
type Providers struct {
	WeatherClient *WeatherClient
	NamedayClient *NamedayClient
}

// Weather returns the current conditions line.
func (p *Providers) Weather(ctx context.Context) (string, error) {
	return p.WeatherClient.Weather(ctx)
}

// Nameday returns the name-day line for the given date.
func (p *Providers) Nameday(ctx context.Context, t time.Time) (string, error) {
	return p.NamedayClient.Nameday(ctx, t)
}
