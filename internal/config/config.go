package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rdanvers/pagecheck/internal/verify"
)

const (
	// Version is the current version of pagecheck
	Version = "1"
	// AppName is the application name
	AppName = "pagecheck"
)

// Config holds all configuration options for pagecheck
type Config struct {
	// Verification
	TargetURL       string
	ReadySelector   string
	OutputPath      string
	Viewport        string // "WxH", empty means browser default
	FullPage        bool
	SettleDelay     time.Duration
	MoveDelay       time.Duration
	NavTimeout      time.Duration
	SelectorTimeout time.Duration
	Moves           PointList
	ThumbnailWidth  int

	// Server
	Serve   bool
	Host    string
	Port    int
	BaseURL string // Full base URL for API responses (e.g., http://localhost:8080)

	// Queue (NATS JetStream)
	WithNats   bool
	NatsURL    string
	NatsStore  string
	NatsAutoDL bool
	NatsBin    string

	// Security
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window for rate limiting
	IdempotencyTTL    time.Duration // TTL for idempotency keys
	ResultTTL         time.Duration // TTL for job results
	MaxJobTimeout     time.Duration // Maximum allowed job timeout

	// Flags
	ShowVersion bool
	ShowHelp    bool
}

// PointList collects repeated "-move x,y" flags in order.
type PointList []verify.Point

// String implements flag.Value
func (p *PointList) String() string {
	parts := make([]string, 0, len(*p))
	for _, pt := range *p {
		parts = append(parts, fmt.Sprintf("%d,%d", pt.X, pt.Y))
	}
	return strings.Join(parts, " ")
}

// Set implements flag.Value
func (p *PointList) Set(value string) error {
	pt, err := ParsePoint(value)
	if err != nil {
		return err
	}
	*p = append(*p, pt)
	return nil
}

// ParsePoint parses an "x,y" coordinate pair.
func ParsePoint(value string) (verify.Point, error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return verify.Point{}, fmt.Errorf("invalid point %q, expected x,y", value)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return verify.Point{}, fmt.Errorf("invalid point %q: %w", value, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return verify.Point{}, fmt.Errorf("invalid point %q: %w", value, err)
	}
	return verify.Point{X: x, Y: y}, nil
}

// ParseViewport parses a "WxH" viewport spec. An empty spec returns nil,
// meaning the browser default is used.
func ParseViewport(value string) (*verify.Viewport, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.SplitN(strings.ToLower(value), "x", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid viewport %q, expected WxH", value)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("invalid viewport %q: %w", value, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid viewport %q: %w", value, err)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid viewport %q: dimensions must be positive", value)
	}
	return &verify.Viewport{Width: w, Height: h}, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		TargetURL:         envOr("PAGECHECK_URL", "http://localhost:8000"),
		ReadySelector:     envOr("PAGECHECK_SELECTOR", "body"),
		OutputPath:        envOr("PAGECHECK_OUTPUT", "./artifacts/verification.png"),
		Viewport:          "1280x720",
		FullPage:          false,
		SettleDelay:       2 * time.Second,
		MoveDelay:         time.Second,
		NavTimeout:        30 * time.Second,
		SelectorTimeout:   30 * time.Second,
		ThumbnailWidth:    0,
		Serve:             false,
		Host:              "0.0.0.0",
		Port:              8080,
		BaseURL:           "", // Will be auto-generated if empty
		WithNats:          false,
		NatsURL:           "nats://127.0.0.1:4222",
		NatsStore:         "./data/nats",
		NatsAutoDL:        true,
		NatsBin:           "./bin/nats-server",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		ResultTTL:         7 * 24 * time.Hour, // 7 days
		MaxJobTimeout:     5 * time.Minute,
		ShowVersion:       false,
		ShowHelp:          false,
	}
}

// ParseFlags parses command line flags and returns the config
func ParseFlags() *Config {
	cfg := DefaultConfig()

	// Verification flags
	flag.StringVar(&cfg.TargetURL, "url", cfg.TargetURL, "Target URL to verify")
	flag.StringVar(&cfg.ReadySelector, "selector", cfg.ReadySelector, "CSS selector that marks the page as ready")
	flag.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "Path to write the screenshot")
	flag.StringVar(&cfg.Viewport, "viewport", cfg.Viewport, "Viewport size as WxH (empty for browser default)")
	flag.BoolVar(&cfg.FullPage, "full-page", cfg.FullPage, "Capture the full page instead of the viewport")
	flag.DurationVar(&cfg.SettleDelay, "settle", cfg.SettleDelay, "Delay after the selector appears, to let rendering settle (negative disables)")
	flag.DurationVar(&cfg.MoveDelay, "move-delay", cfg.MoveDelay, "Delay between pointer moves")
	flag.DurationVar(&cfg.NavTimeout, "nav-timeout", cfg.NavTimeout, "Navigation timeout")
	flag.DurationVar(&cfg.SelectorTimeout, "selector-timeout", cfg.SelectorTimeout, "Ready-selector timeout")
	flag.Var(&cfg.Moves, "move", "Pointer coordinate x,y to hover before capture (repeatable, in order)")
	flag.IntVar(&cfg.ThumbnailWidth, "thumbnail-width", cfg.ThumbnailWidth, "Also write a resized thumbnail of this width (0 disables)")

	// Server flags
	flag.BoolVar(&cfg.Serve, "serve", cfg.Serve, "Run the HTTP API server instead of a one-shot verification")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind the server")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port number for the server")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL for API responses (e.g., http://localhost:8080)")

	// NATS flags
	flag.BoolVar(&cfg.WithNats, "with-nats", cfg.WithNats, "Enable NATS JetStream for the verification job queue")
	flag.StringVar(&cfg.NatsURL, "nats-url", cfg.NatsURL, "NATS server URL")
	flag.StringVar(&cfg.NatsStore, "nats-store", cfg.NatsStore, "NATS JetStream storage directory")
	flag.BoolVar(&cfg.NatsAutoDL, "nats-autodl", cfg.NatsAutoDL, "Auto-download NATS server binary")
	flag.StringVar(&cfg.NatsBin, "nats-bin", cfg.NatsBin, "Path to NATS server binary")

	// Security flags
	flag.IntVar(&cfg.RateLimitRequests, "rate-limit", cfg.RateLimitRequests, "Rate limit requests per minute")

	// Other flags
	flag.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", cfg.ShowHelp, "Show help message")

	// Custom usage function
	flag.Usage = func() {
		PrintHelp()
	}

	flag.Parse()

	// Auto-generate BaseURL if not provided
	if cfg.BaseURL == "" {
		host := cfg.Host
		if host == "0.0.0.0" {
			host = "localhost"
		}
		cfg.BaseURL = fmt.Sprintf("http://%s:%d", host, cfg.Port)
	}

	// Validate
	if cfg.RateLimitRequests < 1 {
		cfg.RateLimitRequests = 100
	}
	if cfg.ThumbnailWidth < 0 {
		cfg.ThumbnailWidth = 0
	}

	return cfg
}

// VerifyRequest builds a verification request from the config.
func (c *Config) VerifyRequest() (verify.Request, error) {
	viewport, err := ParseViewport(c.Viewport)
	if err != nil {
		return verify.Request{}, err
	}

	return verify.Request{
		TargetURL:         c.TargetURL,
		ReadySelector:     c.ReadySelector,
		OutputPath:        c.OutputPath,
		Viewport:          viewport,
		InteractionPoints: c.Moves,
		FullPage:          c.FullPage,
		SettleDelay:       c.SettleDelay,
		MoveDelay:         c.MoveDelay,
		NavTimeout:        c.NavTimeout,
		SelectorTimeout:   c.SelectorTimeout,
		ThumbnailWidth:    c.ThumbnailWidth,
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("%s v%s\n", AppName, Version)
}

// PrintHelp prints help information
func PrintHelp() {
	fmt.Print(helpText())
}

// helpText renders the help message from the actual defaults.
func helpText() string {
	d := DefaultConfig()

	return fmt.Sprintf(`%s v%s (headless page verification)

Usage:
  ./pagecheck [flags]

Verification:
  --url              %s
  --selector         %s
  --output           %s
  --viewport         %s (WxH, empty for browser default)
  --full-page        %v
  --settle           %s (negative disables)
  --move             x,y pointer hover (repeatable, in order)
  --move-delay       %s
  --nav-timeout      %s
  --selector-timeout %s
  --thumbnail-width  %d (0 disables)

Server:
  --serve            run HTTP API server
  --host             %s
  --port             %d
  --base-url         auto-generated from host and port if empty

Queue (NATS JetStream):
  --with-nats        %v
  --nats-url         %s
  --nats-store       %s
  --nats-autodl      %v
  --nats-bin         %s

Security:
  --rate-limit       %d (requests per minute)

Other:
  --version          show version
  --help             show this help

`, AppName, Version,
		d.TargetURL, d.ReadySelector, d.OutputPath,
		d.Viewport, d.FullPage, d.SettleDelay, d.MoveDelay, d.NavTimeout, d.SelectorTimeout, d.ThumbnailWidth,
		d.Host, d.Port,
		d.WithNats, d.NatsURL, d.NatsStore, d.NatsAutoDL, d.NatsBin,
		d.RateLimitRequests)
}

// HandleFlags handles version and help flags, exits if needed
func HandleFlags(cfg *Config) {
	if cfg.ShowVersion {
		PrintVersion()
		os.Exit(0)
	}

	if cfg.ShowHelp {
		PrintHelp()
		os.Exit(0)
	}
}
