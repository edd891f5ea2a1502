package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/oneyeking31/local-explorer/httpclient"
)

var ErrNoWeatherForHour = errors.New("no matching weather data found for the current hour")

// hourLayout matches the hourly timestamps Open-Meteo returns
const hourLayout = "2006-01-02T15:00"

// Forecast is the subset of the Open-Meteo response the backend reads
type Forecast struct {
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature2m []float64 `json:"temperature_2m"`
		WeatherCode   []int     `json:"weather_code"`
	} `json:"hourly"`
}

type CurrentWeather struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
}

// InterpretWeatherCode names a WMO weather code
func InterpretWeatherCode(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 51, 53:
		return "Drizzle"
	case 61, 63, 65:
		return "Rain"
	default:
		return "Unknown"
	}
}

// Current picks the entry for the hour of now (UTC), or the closest earlier
// one. Timestamps are compared as strings, which orders ISO 8601 correctly.
func (f *Forecast) Current(now time.Time) (CurrentWeather, error) {
	h := f.Hourly
	if len(h.Temperature2m) < len(h.Time) || len(h.WeatherCode) < len(h.Time) {
		return CurrentWeather{}, errors.New("malformed forecast: hourly series differ in length")
	}

	hour := now.UTC().Format(hourLayout)
	idx := -1
	for i, t := range h.Time {
		if t > hour {
			break
		}
		idx = i
	}
	if idx == -1 {
		return CurrentWeather{}, ErrNoWeatherForHour
	}

	return CurrentWeather{
		Time:        h.Time[idx],
		Temperature: h.Temperature2m[idx],
		Condition:   InterpretWeatherCode(h.WeatherCode[idx]),
	}, nil
}

// WeatherClient fetches hourly forecasts from Open-Meteo
type WeatherClient struct {
	baseURL string
	http    *httpclient.HTTPClientWithRetries
}

func NewWeatherClient(baseURL string, client *httpclient.HTTPClientWithRetries) *WeatherClient {
	return &WeatherClient{baseURL: baseURL, http: client}
}

// ForecastURL builds the request for lat/lon. Times are requested in GMT so
// they line up with the UTC hour Current looks for.
func (c *WeatherClient) ForecastURL(lat, lon string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid weather url: %w", err)
	}
	q := u.Query()
	q.Set("latitude", lat)
	q.Set("longitude", lon)
	q.Set("hourly", "temperature_2m,weather_code")
	q.Set("timezone", "GMT")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchRaw returns the forecast body as received
func (c *WeatherClient) FetchRaw(ctx context.Context, lat, lon string) ([]byte, error) {
	u, err := c.ForecastURL(lat, lon)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	_, body, _, err := c.http.ExecuteRequest(req)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ParseForecast decodes a body returned by FetchRaw
func ParseForecast(body []byte) (*Forecast, error) {
	var f Forecast
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("failed to decode forecast: %w", err)
	}
	return &f, nil
}
