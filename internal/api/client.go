// Package api implements the HTTP client for the Renovasjonsportal
// waste-collection API.
//
// The API is unauthenticated and exposes two endpoints:
//
//	GET {base}/address/{query}        address search
//	GET {base}/address/{id}/details   disposal schedule for an address
//
// The client performs no retries; callers decide when to try again.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mskaar/renovasjon/internal/models"
)

// DefaultBaseURL is the public Renovasjonsportal API.
const DefaultBaseURL = "https://kalender.renovasjonsportal.no/api"

const (
	requestTimeout = 30 * time.Second
	userAgent      = "renovasjon/1.0"
)

var (
	// ErrConnection covers transport-level failures: timeouts, DNS, TLS.
	ErrConnection = errors.New("connection error")
	// ErrAPI covers non-2xx responses and malformed payloads.
	ErrAPI = errors.New("unexpected API response")
	// ErrAddressNotFound is returned when a search matches nothing or an
	// address id is unknown upstream.
	ErrAddressNotFound = errors.New("address not found")
)

// AddressSearcher resolves free-text queries to address candidates.
type AddressSearcher interface {
	SearchAddress(ctx context.Context, query string) ([]models.AddressSearchResult, error)
}

// ScheduleFetcher fetches the disposal schedule for an address.
type ScheduleFetcher interface {
	GetSchedule(ctx context.Context, addressID string) (*models.ScheduleSnapshot, error)
}

// Client talks to the Renovasjonsportal API. It implements both
// AddressSearcher and ScheduleFetcher.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient returns a Client for the given base URL. An empty baseURL
// selects the public API.
func NewClient(baseURL string, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type searchResponse struct {
	SearchResults          []searchEntry `json:"searchResults"`
	AlternateSearchResults []searchEntry `json:"alternateSearchResults"`
}

type searchEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SubTitle string `json:"subTitle"`
}

type detailsResponse struct {
	Disposals []disposalEntry `json:"disposals"`
}

type disposalEntry struct {
	Date        string `json:"date"`
	Fraction    string `json:"fraction"`
	Description string `json:"description"`
	SymbolID    int    `json:"symbolId"`
}

// SearchAddress returns all candidates matching query, primary results
// first, then alternates. Returns ErrAddressNotFound when nothing matches.
func (c *Client) SearchAddress(ctx context.Context, query string) ([]models.AddressSearchResult, error) {
	reqURL := fmt.Sprintf("%s/address/%s", c.baseURL, url.PathEscape(query))

	var resp searchResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	results := make([]models.AddressSearchResult, 0, len(resp.SearchResults)+len(resp.AlternateSearchResults))
	for _, entry := range resp.SearchResults {
		results = append(results, toSearchResult(entry))
	}
	for _, entry := range resp.AlternateSearchResults {
		results = append(results, toSearchResult(entry))
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no matches for %q", ErrAddressNotFound, query)
	}

	c.logger.WithFields(logrus.Fields{
		"query":   query,
		"matches": len(results),
	}).Debug("Address search completed")

	return results, nil
}

// GetSchedule fetches and parses the disposal schedule for addressID.
// Entries that fail to parse are logged and skipped; an address with zero
// disposals yields a valid, empty snapshot.
func (c *Client) GetSchedule(ctx context.Context, addressID string) (*models.ScheduleSnapshot, error) {
	reqURL := fmt.Sprintf("%s/address/%s/details", c.baseURL, url.PathEscape(addressID))

	var resp detailsResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	disposals := make([]models.Disposal, 0, len(resp.Disposals))
	for _, entry := range resp.Disposals {
		date, err := models.ParseDate(entry.Date)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"fraction": entry.Fraction,
				"date":     entry.Date,
			}).Warn("Skipping unparseable disposal entry")
			continue
		}
		disposals = append(disposals, models.Disposal{
			Date:        date,
			Fraction:    entry.Fraction,
			Description: entry.Description,
			SymbolID:    entry.SymbolID,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"address_id": addressID,
		"disposals":  len(disposals),
	}).Debug("Fetched disposal schedule")

	return models.NewScheduleSnapshot(addressID, disposals, time.Now()), nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPI, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: got 404 from %s", ErrAddressNotFound, reqURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: got %d from %s", ErrAPI, resp.StatusCode, reqURL)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode body: %v", ErrAPI, err)
	}
	return nil
}

func toSearchResult(entry searchEntry) models.AddressSearchResult {
	return models.AddressSearchResult{
		ID:           entry.ID,
		Title:        entry.Title,
		Municipality: entry.SubTitle,
	}
}
