package config

import "time"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
			Auth: AuthConfig{
				Enabled: true,
				Secret:  "change_me",
				Expiry:  24 * time.Hour,
			},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			StaticDir: "web",
			BaseURL:   "http://localhost:8000",
		},
		Storage: StorageConfig{
			DSN:       "data/coastwatch.db",
			UploadDir: "data/uploads",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "127.0.0.1:6379",
			Prefix:  "geocode:",
		},
		Classifier: ClassifierConfig{
			Type:    "static",
			Timeout: 30 * time.Second,
		},
		Geocode: GeocodeConfig{
			BaseURL:  "https://nominatim.openstreetmap.org",
			Timeout:  10 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			RequestTimeout: 15 * time.Second,
			BackendURL:     "http://localhost:8000",
		},
		Security: SecurityConfig{
			MaxFileSize:    5 * 1024 * 1024,
			MaxPixels:      50_000_000,
			MaxWidth:       10000,
			MaxHeight:      10000,
			AllowedFormats: []string{"jpeg", "jpg", "png", "webp", "gif", "bmp"},
			EnableDeepScan: false,
		},
	}
}
