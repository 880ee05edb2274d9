package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bozweather/trader/internal/model"
)

// MultiModelProvider is the free multi-model ensemble forecast source. It
// is requested in Fahrenheit directly (temperature_unit=fahrenheit), so no
// unit conversion is needed here — unlike GovProvider, whose gridpoint
// endpoint only speaks Celsius.
type MultiModelProvider struct {
	BaseURL string
	client  httpDoer
	limiter *rate.Limiter
}

// NewMultiModelProvider creates the multi-model provider with the default
// 5 req/s token-bucket rate limit.
func NewMultiModelProvider(baseURL string, client httpDoer) *MultiModelProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &MultiModelProvider{
		BaseURL: baseURL,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

func (p *MultiModelProvider) Name() string { return "open-meteo" }

type multiModelResponse struct {
	Daily struct {
		Time           []string  `json:"time"`
		Temperature2mMax []float64 `json:"temperature_2m_max"`
	} `json:"daily"`
}

// Fetch retrieves the multi-model daily max-temperature forecast for a
// city/target-date, already in Fahrenheit.
func (p *MultiModelProvider) Fetch(ctx context.Context, city City, targetDate string) (model.Forecast, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return model.Forecast{}, err
	}

	url := fmt.Sprintf(
		"%s/v1/forecast?latitude=%.4f&longitude=%.4f&daily=temperature_2m_max&temperature_unit=fahrenheit&timezone=UTC",
		p.BaseURL, city.Latitude, city.Longitude,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Forecast{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Forecast{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return model.Forecast{}, fmt.Errorf("%w: multi-model status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Forecast{}, fmt.Errorf("multi-model fetch failed: status %d", resp.StatusCode)
	}

	var parsed multiModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Forecast{}, fmt.Errorf("decode multi-model response: %w", err)
	}

	for i, day := range parsed.Daily.Time {
		if day != targetDate {
			continue
		}
		if i >= len(parsed.Daily.Temperature2mMax) {
			break
		}
		return model.Forecast{
			City:           city.Code,
			TargetDate:     targetDate,
			Source:         p.Name(),
			ModelRunTS:     time.Now().UTC(),
			FetchedAt:      time.Now().UTC(),
			PredictedHighF: parsed.Daily.Temperature2mMax[i],
		}, nil
	}

	return model.Forecast{}, fmt.Errorf("no forecast value found for target date %s", targetDate)
}
