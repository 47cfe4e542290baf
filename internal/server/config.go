package server

type HttpConfig struct {
	// Enabled starts the server. It is off by default.
	Enabled bool   `conf:"enabled"`
	Host    string `conf:"host"`
	Port    int    `conf:"port"`
	H2c     bool   `conf:"h2c"`
}

// DefaultConfig holds the defaults of HttpConfig, keyed relative to it.
var DefaultConfig = map[string]any{
	"enabled": false,
	"host":    "127.0.0.1",
	"port":    8080,
	"h2c":     false,
}
