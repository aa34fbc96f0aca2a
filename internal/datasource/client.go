package datasource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/osmdata"
)

// maxErrorBody bounds how much of a failed response is echoed in the error.
const maxErrorBody = 512

// OverpassClient posts raw Overpass QL queries and returns the text payload.
type OverpassClient struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	Logger     *slog.Logger
}

// NewOverpassClient creates a client for endpoint (DefaultEndpoint if empty).
func NewOverpassClient(endpoint string, timeout time.Duration) *OverpassClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &OverpassClient{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  "mapfactory",
	}
}

func (c *OverpassClient) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// QueryRaw sends query form-encoded as "data" and returns the response body.
func (c *OverpassClient) QueryRaw(ctx context.Context, query string) ([]byte, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("overpass query failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read overpass response: %w", err)
	}

	c.log().Debug("overpass query complete",
		"endpoint", c.Endpoint,
		"bytes", len(body),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return body, nil
}

// FetchDocument queries every way in b and decodes the OSM XML payload.
func (c *OverpassClient) FetchDocument(ctx context.Context, b geo.Bounds) (*osmdata.Document, error) {
	payload, err := c.QueryRaw(ctx, BuildQueryAll(b))
	if err != nil {
		return nil, err
	}
	doc, err := osmdata.Parse(payload)
	if err != nil {
		return nil, err
	}
	c.log().Info("fetched OSM data", "bounds", b.QueryString(), "ways", doc.WayCount(), "nodes", doc.NodeCount())
	return doc, nil
}
