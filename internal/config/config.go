package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr          = "0.0.0.0:8303"
	DefaultRoot          = "shared"
	DefaultMaxUploadSize = 100 << 20
	DefaultChunkSize     = 8192
	MaxChunkSize         = 16 << 20
	DefaultLogLevel      = "info"
)

// Config is passed to the server at construction; nothing here is global so
// tests can run several independent servers side by side.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string `yaml:"addr" json:"addr"`

	// Root is the served directory. Every user-facing path is relative to it.
	Root string `yaml:"root" json:"root"`

	// MaxUploadSize is the largest request body /upload accepts, in bytes.
	MaxUploadSize int64 `yaml:"maxUploadSize" json:"maxUploadSize"`

	// ChunkSize is the read/write unit for streamed downloads, in bytes.
	ChunkSize int `yaml:"chunkSize" json:"chunkSize"`

	// MaxConns caps concurrently accepted connections. 0 means unbounded.
	MaxConns int `yaml:"maxConns" json:"maxConns"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel" json:"logLevel"`

	// QR prints a terminal QR code of the LAN URL at startup.
	QR bool `yaml:"qr" json:"qr"`
}

// Override mirrors Config with pointer fields so a partial file can tell
// "unset" from a zero value. Sizes are strings to allow "100MiB".
type Override struct {
	Addr          *string `yaml:"addr,omitempty"`
	Root          *string `yaml:"root,omitempty"`
	MaxUploadSize *string `yaml:"maxUploadSize,omitempty"`
	ChunkSize     *string `yaml:"chunkSize,omitempty"`
	MaxConns      *int    `yaml:"maxConns,omitempty"`
	LogLevel      *string `yaml:"logLevel,omitempty"`
	QR            *bool   `yaml:"qr,omitempty"`
}

func Default() Config {
	return Config{
		Addr:          DefaultAddr,
		Root:          DefaultRoot,
		MaxUploadSize: DefaultMaxUploadSize,
		ChunkSize:     DefaultChunkSize,
		LogLevel:      DefaultLogLevel,
	}
}

// LoadFile reads a YAML (or JSON) file and merges it onto c.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var o Override
	if err := yaml.Unmarshal(b, &o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.Merge(&o)
}

// Merge applies the non-nil fields of o.
func (c *Config) Merge(o *Override) error {
	if o == nil {
		return nil
	}
	if o.Addr != nil {
		c.Addr = *o.Addr
	}
	if o.Root != nil {
		c.Root = *o.Root
	}
	if o.MaxUploadSize != nil {
		n, err := ParseSize(*o.MaxUploadSize)
		if err != nil {
			return fmt.Errorf("maxUploadSize: %w", err)
		}
		c.MaxUploadSize = n
	}
	if o.ChunkSize != nil {
		n, err := ParseSize(*o.ChunkSize)
		if err != nil {
			return fmt.Errorf("chunkSize: %w", err)
		}
		// checked before the int conversion so 32-bit builds cannot wrap
		if n <= 0 || n > MaxChunkSize {
			return fmt.Errorf("chunkSize: %s is outside 1B..%s", *o.ChunkSize, humanize.IBytes(MaxChunkSize))
		}
		c.ChunkSize = int(n)
	}
	if o.MaxConns != nil {
		c.MaxConns = *o.MaxConns
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.QR != nil {
		c.QR = *o.QR
	}
	return nil
}

// ApplyEnv overrides fields from LANSHARE_* variables. lookup is os.LookupEnv
// outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var o Override
	if v, ok := lookup("LANSHARE_ADDR"); ok && v != "" {
		o.Addr = &v
	}
	if v, ok := lookup("LANSHARE_ROOT"); ok && v != "" {
		o.Root = &v
	}
	if v, ok := lookup("LANSHARE_MAX_UPLOAD"); ok && v != "" {
		o.MaxUploadSize = &v
	}
	if v, ok := lookup("LANSHARE_CHUNK_SIZE"); ok && v != "" {
		o.ChunkSize = &v
	}
	if v, ok := lookup("LANSHARE_MAX_CONNS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LANSHARE_MAX_CONNS: %w", err)
		}
		o.MaxConns = &n
	}
	if v, ok := lookup("LANSHARE_LOG_LEVEL"); ok && v != "" {
		o.LogLevel = &v
	}
	return c.Merge(&o)
}

// ParseSize accepts plain byte counts and humanized forms like "8KB" or "100MiB".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return int64(n), nil
}

// Finalize makes Root absolute and creates it.
func (c *Config) Finalize() error {
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("abs root: %w", err)
	}
	c.Root = abs
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("mkdir root: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return errors.New("root cannot be empty")
	}
	if _, port, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", c.Addr, err)
	} else if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	if c.MaxUploadSize <= 0 {
		return errors.New("maxUploadSize must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunkSize must be positive")
	}
	if c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunkSize cannot exceed %s", humanize.IBytes(MaxChunkSize))
	}
	if c.MaxConns < 0 {
		return errors.New("maxConns cannot be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
