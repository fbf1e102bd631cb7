// Package weather fetches current conditions for a country from
// OpenWeatherMap and phrases them for the narrator.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the OpenWeatherMap current-conditions endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

const maxBackoff = 10 * time.Minute

// Client fetches weather by coordinates, caching per location.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	now     func() time.Time

	mu          sync.Mutex
	cache       map[string]cached
	cacheTTL    time.Duration
	lastFailAt  time.Time
	failBackoff time.Duration
}

type cached struct {
	at   time.Time
	cond *Conditions
}

// NewClient creates a weather API client. Returns nil if apiKey is empty.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if apiKey == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
		cache:    make(map[string]cached),
		cacheTTL: 15 * time.Minute,
	}
}

// Enabled reports whether the client is configured.
func (c *Client) Enabled() bool { return c != nil }

// Conditions holds parsed weather data from the API. Temp is Celsius and
// WindSpeed is m/s.
type Conditions struct {
	Temp        float64 `json:"temp"`
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"`
	IsStorm     bool    `json:"is_storm"`
	IsSnow      bool    `json:"is_snow"`
	IsRain      bool    `json:"is_rain"`
}

func locationKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

// Fetch returns current conditions at lat/lon, using the cache if fresh.
// After a failure the client backs off, doubling up to ten minutes, and
// serves stale cache entries where it has them.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*Conditions, error) {
	key := locationKey(lat, lon)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.cache[key]
	if ok && now.Sub(entry.at) < c.cacheTTL {
		return entry.cond, nil
	}

	if c.failBackoff > 0 && now.Sub(c.lastFailAt) < c.failBackoff {
		if ok {
			return entry.cond, nil
		}
		return nil, fmt.Errorf("weather API backoff (%s remaining)", c.failBackoff-now.Sub(c.lastFailAt))
	}

	cond, err := c.fetchFromAPI(ctx, lat, lon)
	if err != nil {
		c.lastFailAt = now
		if c.failBackoff == 0 {
			c.failBackoff = time.Minute
		} else if c.failBackoff < maxBackoff {
			c.failBackoff *= 2
		}
		if ok {
			return entry.cond, nil
		}
		return nil, err
	}

	c.cache[key] = cached{at: now, cond: cond}
	c.failBackoff = 0
	return cond, nil
}

func (c *Client) fetchFromAPI(ctx context.Context, lat, lon float64) (*Conditions, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", lat))
	q.Set("lon", fmt.Sprintf("%.4f", lon))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather API call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read weather response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API error %d: %s", resp.StatusCode, string(body))
	}

	var owm struct {
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}

	if err := json.Unmarshal(body, &owm); err != nil {
		return nil, fmt.Errorf("parse weather: %w", err)
	}

	cond := &Conditions{
		Temp:      owm.Main.Temp,
		WindSpeed: owm.Wind.Speed,
	}

	if len(owm.Weather) > 0 {
		cond.Description = owm.Weather[0].Description
		main := strings.ToLower(owm.Weather[0].Main)
		cond.IsRain = main == "rain" || main == "drizzle"
		cond.IsSnow = main == "snow"
		cond.IsStorm = main == "thunderstorm" || cond.WindSpeed > 15
	}

	slog.Debug("weather fetched", "lat", lat, "lon", lon, "temp", cond.Temp, "desc", cond.Description)
	return cond, nil
}

// Describe phrases conditions for narration in place. With no conditions it
// falls back to the season at lat for the month of now.
func Describe(c *Conditions, place string, lat float64, now time.Time) string {
	if c == nil {
		return fmt.Sprintf("Expect %s in %s this time of year.", seasonDefault(season(lat, now.Month())), place)
	}

	temp := int(math.Round(c.Temp))
	desc := c.Description
	if desc == "" {
		desc = "calm skies"
	}

	switch {
	case c.IsStorm:
		return fmt.Sprintf("A storm is passing over %s right now: %s, %d degrees.", place, desc, temp)
	case c.IsSnow:
		return fmt.Sprintf("Snow in %s today, %d degrees and %s.", place, temp, desc)
	case c.IsRain:
		return fmt.Sprintf("It is raining in %s, %d degrees with %s.", place, temp, desc)
	}
	return fmt.Sprintf("Right now in %s it is %d degrees with %s.", place, temp, desc)
}

// season returns 0 spring, 1 summer, 2 autumn, 3 winter, flipped south of
// the equator.
func season(lat float64, m time.Month) uint8 {
	s := uint8((int(m)+9)%12) / 3 // Mar-May spring in the north
	if lat < 0 {
		s = (s + 2) % 4
	}
	return s
}

func seasonDefault(season uint8) string {
	switch season {
	case 0:
		return "mild spring weather"
	case 1:
		return "warm summer sun"
	case 2:
		return "cool autumn breeze"
	case 3:
		return "cold winter chill"
	default:
		return "fair weather"
	}
}
