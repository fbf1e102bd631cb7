// Package entropy supplies the random draws behind advisory broadcast decisions
// (pacing, reflection gate, shuffle bag). Draws come from a random.org pool when
// a key is configured and fall back to crypto/rand otherwise.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"sync"
	"time"
)

const randomOrgURL = "https://api.random.org/json-rpc/4/invoke"

// Source yields uniform floats in [0, 1).
type Source interface {
	Float() float64
}

// Intn maps a draw from src onto [0, n). n must be positive.
func Intn(src Source, n int) int {
	i := int(src.Float() * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// New returns a random.org backed source, or a crypto/rand source when apiKey is empty.
func New(apiKey string) Source {
	if c := NewClient(apiKey); c != nil {
		return c
	}
	return Crypto{}
}

// Crypto draws from crypto/rand.
type Crypto struct{}

// Float returns a crypto/rand float in [0, 1).
func (Crypto) Float() float64 { return cryptoRandFloat() }

// Seeded is a reproducible math/rand source, used for replays and --seed runs.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a reproducible source.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float returns the next float in the seeded sequence.
func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Client provides true random numbers from random.org with a local pool.
type Client struct {
	apiKey string
	url    string
	client *http.Client

	now  func() time.Time

	mu          sync.Mutex
	pool        []float64
	lastFailAt  time.Time
	failBackoff time.Duration
}

// Backoff after a failed refill starts at a minute and doubles up to maxBackoff.
const (
	minBackoff = time.Minute
	maxBackoff = 10 * time.Minute
)

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey: apiKey,
		url:    randomOrgURL,
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
	}
}

// Float returns a random float64 in [0, 1). Uses the pool, refilling from
// random.org when low. Falls back to crypto/rand on API failure, and skips
// refills entirely while backing off from a failure.
func (c *Client) Float() float64 {
	if c == nil {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < 10 && !c.backingOff() {
		if err := c.refill(); err != nil {
			c.fail(err)
		} else {
			c.failBackoff = 0
		}
	}

	if len(c.pool) == 0 {
		return cryptoRandFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) backingOff() bool {
	return c.failBackoff > 0 && c.now().Sub(c.lastFailAt) < c.failBackoff
}

func (c *Client) fail(err error) {
	c.lastFailAt = c.now()
	if c.failBackoff == 0 {
		c.failBackoff = minBackoff
	} else if c.failBackoff < maxBackoff {
		c.failBackoff = min(c.failBackoff*2, maxBackoff)
	}
	slog.Debug("random.org refill failed", "error", err, "backoff", c.failBackoff)
}

func (c *Client) refill() error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             100,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if result.Error != nil {
		return fmt.Errorf("api error: %s", result.Error.Message)
	}

	for _, v := range result.Result.Random.Data {
		if v >= 0 && v < 1 {
			c.pool = append(c.pool, v)
		}
	}
	slog.Debug("random.org pool refilled", "count", len(c.pool))
	return nil
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		return 0.5
	}
	// 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}
