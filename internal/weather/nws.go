package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bozweather/trader/internal/model"
)

// GridPoint is a cached governmental forecast-office grid reference for
// one city. Grid resolution (lat/lon -> office/x/y) happens once and is
// never refetched unless explicitly invalidated.
type GridPoint struct {
	Office string
	GridX  int
	GridY  int
}

// httpDoer is the minimal surface GovProvider needs from an HTTP client,
// letting tests substitute a fake transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GovProvider is the "governmental" numerical-gridpoint forecast source.
// Raw gridpoint temperatures arrive in Celsius and are converted to
// Fahrenheit before being stored — the stored Forecast is always in
// Fahrenheit regardless of upstream units.
type GovProvider struct {
	BaseURL   string
	UserAgent string
	client    httpDoer
	limiter   *rate.Limiter

	mu    sync.Mutex
	grids map[string]GridPoint // city code -> cached grid
}

// NewGovProvider creates the governmental provider with the default 1
// req/s token-bucket rate limit.
func NewGovProvider(baseURL, userAgent string, client httpDoer) *GovProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GovProvider{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		grids:     make(map[string]GridPoint),
	}
}

func (p *GovProvider) Name() string { return "nws" }

// resolveGrid returns the cached grid for a city, resolving and caching it
// on first use. Never refetched afterward unless InvalidateGrid is called.
func (p *GovProvider) resolveGrid(ctx context.Context, city City) (GridPoint, error) {
	p.mu.Lock()
	if g, ok := p.grids[city.Code]; ok {
		p.mu.Unlock()
		return g, nil
	}
	p.mu.Unlock()

	if err := p.limiter.Wait(ctx); err != nil {
		return GridPoint{}, err
	}

	url := fmt.Sprintf("%s/points/%.4f,%.4f", p.BaseURL, city.Latitude, city.Longitude)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return GridPoint{}, err
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return GridPoint{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return GridPoint{}, fmt.Errorf("%w: gridpoint lookup status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return GridPoint{}, fmt.Errorf("gridpoint lookup failed: status %d", resp.StatusCode)
	}

	var body struct {
		Properties struct {
			GridID string `json:"gridId"`
			GridX  int    `json:"gridX"`
			GridY  int    `json:"gridY"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return GridPoint{}, fmt.Errorf("decode gridpoint response: %w", err)
	}

	g := GridPoint{Office: body.Properties.GridID, GridX: body.Properties.GridX, GridY: body.Properties.GridY}

	p.mu.Lock()
	p.grids[city.Code] = g
	p.mu.Unlock()

	slog.Info("resolved forecast grid", "city", city.Code, "office", g.Office, "x", g.GridX, "y", g.GridY)
	return g, nil
}

// InvalidateGrid drops the cached grid for a city, forcing re-resolution
// on the next Fetch.
func (p *GovProvider) InvalidateGrid(city City) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.grids, city.Code)
}

type gridpointForecastResponse struct {
	Properties struct {
		MaxTemperature struct {
			UnitCode string `json:"uom"` // e.g. "wmoUnit:degC"
			Values   []struct {
				ValidTime string  `json:"validTime"`
				Value     float64 `json:"value"`
			} `json:"values"`
		} `json:"maxTemperature"`
	} `json:"properties"`
}

// Fetch retrieves the governmental numerical forecast for a city/date.
func (p *GovProvider) Fetch(ctx context.Context, city City, targetDate string) (model.Forecast, error) {
	grid, err := p.resolveGrid(ctx, city)
	if err != nil {
		return model.Forecast{}, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return model.Forecast{}, err
	}

	url := fmt.Sprintf("%s/gridpoints/%s/%d,%d", p.BaseURL, grid.Office, grid.GridX, grid.GridY)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Forecast{}, err
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Forecast{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return model.Forecast{}, fmt.Errorf("%w: gridpoint forecast status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.Forecast{}, fmt.Errorf("gridpoint forecast failed: status %d: %s", resp.StatusCode, body)
	}

	var parsed gridpointForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Forecast{}, fmt.Errorf("decode gridpoint forecast: %w", err)
	}

	highC, runTime, err := maxTemperatureFor(parsed, targetDate, city)
	if err != nil {
		return model.Forecast{}, err
	}

	return model.Forecast{
		City:           city.Code,
		TargetDate:     targetDate,
		Source:         p.Name(),
		ModelRunTS:     runTime,
		FetchedAt:      time.Now().UTC(),
		PredictedHighF: CelsiusToFahrenheit(highC),
	}, nil
}

// maxTemperatureFor picks the maxTemperature value whose validTime window
// covers the target date in the city's standard-time frame.
func maxTemperatureFor(resp gridpointForecastResponse, targetDate string, city City) (float64, time.Time, error) {
	for _, v := range resp.Properties.MaxTemperature.Values {
		// validTime format: "2025-02-18T00:00:00+00:00/P1D"
		var startStr string
		for i, ch := range v.ValidTime {
			if ch == '/' {
				startStr = v.ValidTime[:i]
				break
			}
		}
		if startStr == "" {
			startStr = v.ValidTime
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			continue
		}
		if TargetDateFor(city, start) == targetDate {
			return v.Value, start, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("no maxTemperature value found for target date %s", targetDate)
}
