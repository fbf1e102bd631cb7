package entropy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type constSource float64

func (c constSource) Float() float64 { return float64(c) }

func TestIntn_Bounds(t *testing.T) {
	tests := []struct {
		draw float64
		n    int
		want int
	}{
		{0, 5, 0},
		{0.19, 5, 0},
		{0.2, 5, 1},
		{0.999999, 5, 4},
		{1.0, 5, 4},
		{-0.1, 5, 0},
	}
	for _, tt := range tests {
		if got := Intn(constSource(tt.draw), tt.n); got != tt.want {
			t.Errorf("Intn(%v, %d) = %d, want %d", tt.draw, tt.n, got, tt.want)
		}
	}
}

func TestCrypto_InRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		f := Crypto{}.Float()
		if f < 0 || f >= 1 {
			t.Fatalf("draw %d out of range: %v", i, f)
		}
	}
}

func TestSeeded_Reproducible(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 20; i++ {
		if x, y := a.Float(), b.Float(); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestNew_WithoutKeyUsesCrypto(t *testing.T) {
	if _, ok := New("").(Crypto); !ok {
		t.Fatal("expected Crypto source for empty key")
	}
	if NewClient("") != nil {
		t.Fatal("expected nil client for empty key")
	}
}

func TestClient_PoolFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := "0.25"
		for i := 0; i < 19; i++ {
			data += ",0.25"
		}
		fmt.Fprintf(w, `{"result":{"random":{"data":[%s]}}}`, data)
	}))
	defer srv.Close()

	c := NewClient("key")
	c.url = srv.URL

	if got := c.Float(); got != 0.25 {
		t.Fatalf("Float = %v, want 0.25 from pool", got)
	}
}

func TestClient_FallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("key")
	c.url = srv.URL

	f := c.Float()
	if f < 0 || f >= 1 {
		t.Fatalf("fallback draw out of range: %v", f)
	}
}

func TestClient_NilFloat(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatal("nil client should not be enabled")
	}
	f := c.Float()
	if f < 0 || f >= 1 {
		t.Fatalf("nil client draw out of range: %v", f)
	}
}

func TestClient_BacksOffAfterFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewClient("key")
	c.url = srv.URL
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if f := c.Float(); f < 0 || f >= 1 {
			t.Fatalf("draw %d out of range: %v", i, f)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("calls while down = %d, want 1", got)
	}

	// Still inside the first minute.
	now = now.Add(30 * time.Second)
	c.Float()
	if got := hits.Load(); got != 1 {
		t.Fatalf("called during backoff: %d", got)
	}

	now = now.Add(time.Minute)
	c.Float()
	if got := hits.Load(); got != 2 {
		t.Fatalf("no retry after backoff: %d", got)
	}
	if c.failBackoff != 2*time.Minute {
		t.Fatalf("backoff = %v, want doubled to 2m", c.failBackoff)
	}
}

func TestClient_BackoffCapped(t *testing.T) {
	c := NewClient("key")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	for i := 0; i < 10; i++ {
		c.fail(errors.New("down"))
	}
	if c.failBackoff != maxBackoff {
		t.Fatalf("backoff = %v, want %v", c.failBackoff, maxBackoff)
	}
}

func TestClient_RecoveryResetsBackoff(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"result":{"random":{"data":[0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5]}}}`)
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewClient("key")
	c.url = srv.URL
	c.now = func() time.Time { return now }

	c.Float()
	fail.Store(false)
	now = now.Add(2 * time.Minute)
	if got := c.Float(); got != 0.5 {
		t.Fatalf("Float = %v, want pooled 0.5", got)
	}
	if c.failBackoff != 0 {
		t.Fatalf("backoff not reset: %v", c.failBackoff)
	}
}
