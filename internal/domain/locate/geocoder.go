package locate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"coastwatch-server-go/internal/platform/config"
	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

// Geocoder resolves coordinates to human-readable place names through a
// Nominatim-compatible reverse endpoint. Results are cached in redis when
// a cache client is supplied, since the same shoreline spots come up again
// and again.
type Geocoder struct {
	baseURL string
	client  *http.Client
	cache   *redis.Client
	prefix  string
	ttl     time.Duration
	logger  *logging.Logger
}

// NewGeocoder constructs a reverse geocoder. cache may be nil.
func NewGeocoder(cfg *config.GeocodeConfig, cache *redis.Client, prefix string, logger *logging.Logger) *Geocoder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default
	}
	return &Geocoder{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		prefix:  prefix,
		ttl:     ttl,
		logger:  logger,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

// ReverseLookup returns a shortened display name for the coordinate. The
// full display name is trimmed to its first three comma-separated parts.
func (g *Geocoder) ReverseLookup(ctx context.Context, lat, lon float64) (string, error) {
	const op = "locate.ReverseLookup"

	key := fmt.Sprintf("%s%.6f,%.6f", g.prefix, lat, lon)
	if g.cache != nil {
		if name, err := g.cache.Get(ctx, key).Result(); err == nil && name != "" {
			g.logger.DebugTag("GEOCODE", "cache hit for %s", key)
			return name, nil
		}
	}

	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", fmt.Sprintf("%.6f", lat))
	query.Set("lon", fmt.Sprintf("%.6f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(errors.KindLocation, op, "build request", err)
	}
	req.Header.Set("User-Agent", "coastwatch-server")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindLocation, op, "reverse lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.KindLocation, op,
			fmt.Sprintf("reverse lookup returned status %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(errors.KindLocation, op, "read response", err)
	}

	var decoded reverseResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", errors.Wrap(errors.KindLocation, op, "decode response", err)
	}
	if decoded.DisplayName == "" {
		return "", errors.New(errors.KindLocation, op, "no display name for coordinate")
	}

	name := shortenName(decoded.DisplayName)
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, name, g.ttl).Err(); err != nil {
			g.logger.WarnTag("GEOCODE", "cache write failed: %v", err)
		}
	}
	return name, nil
}

func shortenName(displayName string) string {
	parts := strings.Split(displayName, ",")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ", ")
}
