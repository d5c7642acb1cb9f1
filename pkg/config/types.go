package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration tree, loaded from YAML and
// overridable via ZEROZERO_* environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retention RetentionConfig `yaml:"retention"`
	Queue     QueueConfig     `yaml:"queue"`
	Deliver   DeliverConfig   `yaml:"deliver"`
	Relay     RelayConfig     `yaml:"relay"`
	Notify    NotifyConfig    `yaml:"notify"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// ServerConfig holds the local gateway listen settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig holds the data path.
type StorageConfig struct {
	DataPath string `yaml:"data_path"`
}

// SecurityConfig guards the gateway and at-rest storage.
type SecurityConfig struct {
	APIKey string `yaml:"api_key"`
	CORS   struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Encryption struct {
		Use    bool   `yaml:"use"`
		KeyHex string `yaml:"key_hex"`
	} `yaml:"encryption"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// RetentionConfig controls the periodic maintenance sweep.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	DryRun  bool   `yaml:"dry_run"`
}

// QueueConfig tunes the offline outbound queue.
type QueueConfig struct {
	TTL Duration `yaml:"ttl"`
}

// DeliverConfig tunes the delivery workers.
type DeliverConfig struct {
	Workers      int       `yaml:"workers"`
	Capacity     int       `yaml:"capacity"`
	RatePerLink  float64   `yaml:"rate_per_link"`
	Burst        int       `yaml:"burst"`
	MaxPayload   SizeBytes `yaml:"max_payload"`
	DrainTimeout Duration  `yaml:"drain_timeout"`
}

// RelayConfig points at the rendezvous relay that carries channel
// traffic between nodes.
type RelayConfig struct {
	URL string `yaml:"url"`
}

// NotifyConfig points at the optional wake-up relay.
type NotifyConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// LimitsConfig overrides message size bounds; zero keeps the defaults.
type LimitsConfig struct {
	MaxContentLen  int `yaml:"max_content_len"`
	MaxLabelLen    int `yaml:"max_label_len"`
	MaxFilenameLen int `yaml:"max_filename_len"`
}

// Addr renders the listen address as host:port.
func (c *Config) Addr() string {
	if c == nil {
		return ""
	}
	if c.Server.Port == 0 && c.Server.Address == "" {
		return ""
	}
	if c.Server.Port == 0 {
		return c.Server.Address
	}
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// SizeBytes parses human-friendly sizes like "64KB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration parses "30s"/"100ms" strings or plain numbers as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
