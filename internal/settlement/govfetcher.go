package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bozweather/trader/internal/weather"
)

// GovReportFetcher retrieves the previous day's official climate report
// from the same governmental service internal/weather uses for
// forecasts. It is a distinct endpoint (the CLImate report, not the
// forecast gridpoint), so it gets its own limiter rather than sharing
// weather.GovProvider's.
type GovReportFetcher struct {
	BaseURL   string
	UserAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewGovReportFetcher creates the fetcher with a 1 req/s limiter,
// matching the governmental service's default rate.
func NewGovReportFetcher(baseURL, userAgent string) *GovReportFetcher {
	return &GovReportFetcher{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
	}
}

type climateReportResponse struct {
	Data []struct {
		Date    string  `json:"date"`
		MaxTemp float64 `json:"maxTempF"`
	} `json:"data"`
}

// FetchActualHigh fetches and parses the official daily high for
// (city, targetDate). Returns ErrReportUnavailable for a 404 (report not
// yet published) and transport errors, both retryable by the Ingestor.
func (f *GovReportFetcher) FetchActualHigh(ctx context.Context, city weather.City, targetDate string) (float64, string, []byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, "", nil, err
	}

	url := fmt.Sprintf("%s/climate/%s/daily?date=%s", f.BaseURL, city.Code, targetDate)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("%w: %v", ErrReportUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return 0, "", nil, fmt.Errorf("%w: report not yet published", ErrReportUnavailable)
	}
	if resp.StatusCode >= 500 {
		return 0, "", nil, fmt.Errorf("%w: status %d", ErrReportUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", nil, fmt.Errorf("climate report fetch failed: status %d: %s", resp.StatusCode, raw)
	}

	var parsed climateReportResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, "", nil, fmt.Errorf("decode climate report: %w", err)
	}

	for _, d := range parsed.Data {
		if d.Date == targetDate {
			return d.MaxTemp, "nws-climate", raw, nil
		}
	}
	return 0, "", nil, fmt.Errorf("%w: no entry for %s", ErrReportUnavailable, targetDate)
}
