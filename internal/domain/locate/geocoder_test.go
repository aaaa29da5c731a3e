package locate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"coastwatch-server-go/internal/platform/config"
	platformtesting "coastwatch-server-go/internal/platform/testing"
)

func TestReverseLookup(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/reverse" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"display_name": "Marine Drive, Mumbai, Maharashtra, 400020, India",
		})
	}))
	defer server.Close()

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	geocoder := NewGeocoder(&config.GeocodeConfig{
		BaseURL:  server.URL,
		Timeout:  5 * time.Second,
		CacheTTL: time.Hour,
	}, cache, "geocode:", platformtesting.SetupTestLogger(t))

	name, err := geocoder.ReverseLookup(context.Background(), 18.944, 72.8238)
	if err != nil {
		t.Fatalf("ReverseLookup: %v", err)
	}
	if name != "Marine Drive, Mumbai, Maharashtra" {
		t.Errorf("name = %q, want first three parts only", name)
	}

	// Second lookup for the same spot must come from the cache.
	name, err = geocoder.ReverseLookup(context.Background(), 18.944, 72.8238)
	if err != nil {
		t.Fatalf("cached ReverseLookup: %v", err)
	}
	if name != "Marine Drive, Mumbai, Maharashtra" {
		t.Errorf("cached name = %q", name)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestReverseLookupWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"display_name": "Bondi Beach, Sydney"})
	}))
	defer server.Close()

	geocoder := NewGeocoder(&config.GeocodeConfig{BaseURL: server.URL}, nil, "",
		platformtesting.SetupTestLogger(t))

	name, err := geocoder.ReverseLookup(context.Background(), -33.8908, 151.2743)
	if err != nil {
		t.Fatalf("ReverseLookup: %v", err)
	}
	if name != "Bondi Beach, Sydney" {
		t.Errorf("name = %q", name)
	}
}

func TestReverseLookupFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	geocoder := NewGeocoder(&config.GeocodeConfig{BaseURL: server.URL}, nil, "",
		platformtesting.SetupTestLogger(t))

	if _, err := geocoder.ReverseLookup(context.Background(), 0, 0); err == nil {
		t.Fatalf("expected error on upstream failure")
	}
}

func TestShortenName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A, B, C, D, E", "A, B, C"},
		{"Single Place", "Single Place"},
		{"One, Two", "One, Two"},
	}
	for _, tt := range tests {
		if got := shortenName(tt.in); got != tt.want {
			t.Errorf("shortenName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
