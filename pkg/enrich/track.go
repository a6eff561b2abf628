package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// TrackClient fetches the registry's public tracking page for a request
// number and extracts license fields from it. It is the unstructured
// fallback behind the structured detail query.
type TrackClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    zerolog.Logger
}

// TrackConfig holds the track page client configuration.
type TrackConfig struct {
	// BaseURL is the registry site root, e.g. https://qr.mojavez.ir.
	BaseURL string

	// UserAgent identifies the harvester; empty uses the default.
	UserAgent string

	// Timeout bounds one document fetch. Defaults to 30s.
	Timeout time.Duration
}

// NewTrackClient creates a track page client.
func NewTrackClient(cfg TrackConfig) *TrackClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mojavez-harvester"
	}
	return &TrackClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    log.With().Str("component", "track-client").Logger(),
	}
}

// Fetch downloads the tracking document for the request number and extracts
// a detail from it.
func (c *TrackClient) Fetch(ctx context.Context, requestNumber string) (*mojavez.Detail, error) {
	trackURL := fmt.Sprintf("%s/track/%s", c.baseURL, url.PathEscape(requestNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating track request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching track page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("track page returned %s", resp.Status)
	}

	detail, err := ExtractDetail(resp.Body, requestNumber)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("request_number", requestNumber).
		Msg("Extracted detail from track page")
	return detail, nil
}
