package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmpotulo28/redirect/pkg/metrics"
)

// DefaultBaseURL points at the public ip-api.com endpoint. It serves lookups
// without an API key; heavy traffic should run a paid mirror and override
// this through configuration.
const DefaultBaseURL = "http://ip-api.com"

// DefaultTimeout bounds a single lookup. The resolution path treats a
// timeout the same as any other lookup failure.
const DefaultTimeout = 2 * time.Second

// Client resolves an IP address to a country code and a city via the
// ip-api.com JSON endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
}

// Lookup returns the ISO country code and city for ip. Private, loopback and
// unparsable addresses fail immediately without a network call.
func (c *Client) Lookup(ctx context.Context, ip string) (country, city string, err error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", "", fmt.Errorf("unparsable ip %q", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return "", "", fmt.Errorf("non-routable ip %q", ip)
	}

	start := time.Now()
	country, city, err = c.query(ctx, ip)
	metrics.GeoLookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GeoLookupErrors.Inc()
		c.log.Warn().Msgf("geo lookup failed for %s: %v", ip, err)
	}

	return country, city, err
}

func (c *Client) query(ctx context.Context, ip string) (string, string, error) {
	endpoint := fmt.Sprintf("%s/json/%s?fields=status,message,country,countryCode,city", c.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build geo request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("failed to decode geo response: %w", err)
	}

	if body.Status != "success" {
		return "", "", fmt.Errorf("geo lookup rejected: %s", body.Message)
	}

	return body.CountryCode, body.City, nil
}
