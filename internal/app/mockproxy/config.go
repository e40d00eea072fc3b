package mockproxy

import (
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second
)

// UnmatchedPolicy decides what happens to a request no mock answers.
type UnmatchedPolicy string

const (
	UnmatchedFail        UnmatchedPolicy = "fail"
	UnmatchedPassthrough UnmatchedPolicy = "passthrough"
)

func (p UnmatchedPolicy) Validate() error {
	switch p {
	case "", UnmatchedFail, UnmatchedPassthrough:
		return nil
	}
	return errors.Errorf("unknown unmatched policy '%s'", p)
}

type Config struct {
	ServerAddress   url.URL         `env:"SERVER_ADDRESS"`      // Address to listen on
	Proxies         []url.URL       `env:"PROXIES,delimiter=;"` // List of URL to serve mock-proxy on, e.g. http://localhost:8080;http://localhost:8081
	WaitDelay       time.Duration   `env:"WAIT_DELAY"`          // Delay between wait attempts
	WaitDuration    time.Duration   `env:"WAIT_DURATION"`       // Default bounded wait window
	UnmatchedPolicy UnmatchedPolicy `env:"UNMATCHED_POLICY"`    // fail (default) or passthrough
	MocksFile       string          `env:"MOCKS_FILE"`          // YAML mocks preloaded into every session
	TLSCAFile       string          `env:"TLS_CA_FILE"`
	TLSCertFile     string          `env:"TLS_CERT_FILE"`
	TLSKeyFile      string          `env:"TLS_KEY_FILE"`
	Target          url.URL         // Do not load Target from env, passthrough destination per proxy
}

func (c Config) withDefaults() Config {
	if c.WaitDelay == 0 {
		c.WaitDelay = defaultDelay
	}
	if c.WaitDuration == 0 {
		c.WaitDuration = defaultDuration
	}
	if c.UnmatchedPolicy == "" {
		c.UnmatchedPolicy = UnmatchedFail
	}
	return c
}
