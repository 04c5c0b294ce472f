package client

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

const (
	DefaultPrimary      = "https://vshort.xyz"
	DefaultIntermediate = "https://www.2short.club"
	DefaultSecondary    = "https://finance.vshort.xyz"

	defaultTraversalTimeout = 8 * time.Second
	defaultSubmitTimeout    = 15 * time.Second
)

// Endpoints holds the base URLs (scheme://host, no trailing slash) of the
// hosts involved in one bypass.
type Endpoints struct {
	// Primary serves the root page, the landing page and the /links/go POST.
	Primary string
	// Intermediate is the ad host hit with ?link=<id>.
	Intermediate string
	// Secondary only ever appears in the landing page Referer. It is never fetched.
	Secondary string
}

func (e Endpoints) rootURL() string            { return e.Primary + "/" }
func (e Endpoints) landingURL(id string) string { return e.Primary + "/" + id }
func (e Endpoints) submitURL() string          { return e.Primary + "/links/go" }

func (e Endpoints) intermediateURL(id string) string {
	return fmt.Sprintf("%s/?link=%s", e.Intermediate, id)
}

func (e Endpoints) syntheticReferer(id string) string {
	return fmt.Sprintf("%s/?link=%s", e.Secondary, id)
}

// Config holds everything a Bypasser needs. Zero values are replaced with
// defaults by New.
type Config struct {
	Endpoints Endpoints

	UserAgent string

	// TraversalTimeout bounds each of the three GETs.
	TraversalTimeout time.Duration
	// SubmitTimeout bounds the final POST.
	SubmitTimeout time.Duration

	// ProxyURL is an optional socks5:// proxy used by both clients.
	ProxyURL string

	// RunLogPath, when set, receives one JSON line per Run.
	RunLogPath string

	// Logger receives progress lines. Defaults to log.Default().
	Logger *log.Logger
	// Out receives the console report. Defaults to color.Output.
	Out io.Writer

	// rootCAs replaces the system roots on both transports when set.
	rootCAs *x509.CertPool
}

// DefaultConfig returns the configuration for the live vshort.xyz chain.
func DefaultConfig() Config {
	return Config{
		Endpoints: Endpoints{
			Primary:      DefaultPrimary,
			Intermediate: DefaultIntermediate,
			Secondary:    DefaultSecondary,
		},
		UserAgent:        ChromeUserAgent,
		TraversalTimeout: defaultTraversalTimeout,
		SubmitTimeout:    defaultSubmitTimeout,
	}
}

// ConfigFromEnv starts from DefaultConfig and applies VSHORT_* overrides.
// Call godotenv.Load first if a .env file should be honoured.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("VSHORT_PROXY")); v != "" {
		cfg.ProxyURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VSHORT_USER_AGENT")); v != "" {
		cfg.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv("VSHORT_RUN_LOG")); v != "" {
		cfg.RunLogPath = v
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults returns a copy of the config with defaults applied for zero values.
func (c Config) applyDefaults() Config {
	cfg := c
	def := DefaultConfig()

	if cfg.Endpoints.Primary == "" {
		cfg.Endpoints.Primary = def.Endpoints.Primary
	}
	if cfg.Endpoints.Intermediate == "" {
		cfg.Endpoints.Intermediate = def.Endpoints.Intermediate
	}
	if cfg.Endpoints.Secondary == "" {
		cfg.Endpoints.Secondary = def.Endpoints.Secondary
	}
	cfg.Endpoints.Primary = strings.TrimRight(cfg.Endpoints.Primary, "/")
	cfg.Endpoints.Intermediate = strings.TrimRight(cfg.Endpoints.Intermediate, "/")
	cfg.Endpoints.Secondary = strings.TrimRight(cfg.Endpoints.Secondary, "/")

	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.TraversalTimeout == 0 {
		cfg.TraversalTimeout = def.TraversalTimeout
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Out == nil {
		cfg.Out = color.Output
	}
	return cfg
}

// validate checks if the configuration is valid.
func (c Config) validate() error {
	for name, base := range map[string]string{
		"primary":      c.Endpoints.Primary,
		"intermediate": c.Endpoints.Intermediate,
		"secondary":    c.Endpoints.Secondary,
	} {
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("invalid %s endpoint %q: %w", name, base, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid %s endpoint %q: scheme must be http or https", name, base)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid %s endpoint %q: missing host", name, base)
		}
	}

	if c.TraversalTimeout < 0 || c.SubmitTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}

	if c.ProxyURL != "" {
		if _, err := parseProxyURL(c.ProxyURL); err != nil {
			return err
		}
	}
	return nil
}
