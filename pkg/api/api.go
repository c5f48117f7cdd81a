// Package api provides types and functions to fetch the public fuel
// price feeds published by UK retailers, aggregate them into a single
// timestamped snapshot, and parse snapshots back from storage.
package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 10 * time.Second

	// Most retailer endpoints reject requests without a browser-looking
	// User-Agent.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

	maxConcurrentFetches = 5
)

// DefaultRetailers maps retailer names to their published price feed
// endpoints.
var DefaultRetailers = map[string]string{
	"Applegreen":       "https://applegreenstores.com/fuel-prices/data.json",
	"Ascona":           "https://fuelprices.asconagroup.co.uk/newfuel.json",
	"Asda":             "https://storelocator.asda.com/fuel_prices_data.json",
	"BP":               "https://www.bp.com/en_gb/united-kingdom/home/fuelprices/fuel_prices_data.json",
	"Costco":           "https://www.costco.co.uk/store-finder/search?q=united+kingdom&fuel=true",
	"Esso":             "https://fuelprices.esso.co.uk/latestdata.json",
	"Jet":              "https://jetlocal.co.uk/fuel_prices_data.json",
	"Morrisons":        "https://www.morrisons.com/fuel-prices/fuel.json",
	"Moto":             "https://moto-way.com/fuel-price/fuel_prices.json",
	"Motor Fuel Group": "https://fuel.motorfuelgroup.com/fuel_prices_data.json",
	"Rontec":           "https://www.rontec-servicestations.co.uk/fuel-prices/data/fuel_prices_data.json",
	"Sainsburys":       "https://api.sainsburys.co.uk/v1/exports/latest/fuel_prices_data.json",
	"Shell":            "https://www.shell.co.uk/fuel-prices-data.html",
	"Tesco":            "https://www.tesco.com/fuel_prices/fuel_prices_data.json",
}

// FeedClient fetches retailer price feeds and aggregates them into
// snapshots.
type FeedClient struct {
	retailers  map[string]string
	httpClient *http.Client
}

// NewFeedClient creates a FeedClient for the default retailer set.
func NewFeedClient() *FeedClient {
	return NewFeedClientFor(DefaultRetailers)
}

// NewFeedClientFor creates a FeedClient for a custom retailer → URL map.
func NewFeedClientFor(retailers map[string]string) *FeedClient {
	return &FeedClient{
		retailers: retailers,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// FetchRetailer fetches a single retailer's feed. Fetch failures are
// not returned as errors: they become error-status results so that one
// broken feed never aborts an aggregation run.
func (c *FeedClient) FetchRetailer(ctx context.Context, retailer, url string) RetailerResult {
	result := RetailerResult{
		Retailer: retailer,
		URL:      url,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		result.Status = StatusError
		result.Error = fmt.Sprintf("error creating request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", userAgent)
	// Shell's endpoint ends in .html but serves JSON when asked.
	if retailer == "Shell" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Status = StatusError
		result.Error = fmt.Sprintf("error fetching data: %v", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusError
		result.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		return result
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Status = StatusError
		result.Error = fmt.Sprintf("error reading response body: %v", err)
		return result
	}

	if !json.Valid(body) {
		result.Status = StatusError
		result.Error = "invalid JSON response"
		return result
	}

	result.Status = StatusSuccess
	result.Data = json.RawMessage(body)
	return result
}

// FetchAll fetches every configured retailer feed concurrently and
// returns the aggregated snapshot. It never fails as a whole: each
// retailer's outcome, success or error, is recorded in its result.
func (c *FeedClient) FetchAll(ctx context.Context) *Snapshot {
	results := make([]RetailerResult, 0, len(c.retailers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	ch := make(chan RetailerResult, len(c.retailers))
	for retailer, url := range c.retailers {
		g.Go(func() error {
			ch <- c.FetchRetailer(ctx, retailer, url)
			return nil
		})
	}
	// Workers never return errors; failures are carried in the results.
	_ = g.Wait()
	close(ch)

	for r := range ch {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Retailer < results[j].Retailer
	})

	return &Snapshot{
		Timestamp: time.Now().Format(time.RFC3339),
		Results:   results,
	}
}

// ParseSnapshot decodes a stored snapshot. Snapshots may be persisted
// gzip-compressed; both compressed and plain JSON are accepted.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("error opening gzip snapshot: %w", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("error decompressing snapshot: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("error unmarshaling snapshot: %w", err)
	}
	return &snap, nil
}
