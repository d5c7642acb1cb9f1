package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line values and which were explicitly set.
type Flags struct {
	Addr   string
	Data   string
	Config string
	Set    map[string]bool
}

// ParseConfigFlags parses the daemon flags.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":7117", "gateway listen address")
	dataPtr := flag.String("data", DefaultDataPath, "data directory")
	cfgPtr := flag.String("config", "./zerozero.yaml", "path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, Data: *dataPtr, Config: *cfgPtr, Set: set}
}

// ParseConfigFile loads the YAML file resolved from flags. Absence is
// not an error; parse failures are.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	path := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads ZEROZERO_* environment overrides into a fresh
// Config and reports whether any were present.
func ParseConfigEnvs() (*Config, bool) {
	cfg := &Config{}
	used := false
	set := func(fn func()) {
		used = true
		fn()
	}
	parseList := func(v string) []string {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	if v := os.Getenv("ZEROZERO_ADDR"); v != "" {
		set(func() {
			if h, p, err := net.SplitHostPort(v); err == nil {
				cfg.Server.Address = h
				if pi, err := strconv.Atoi(p); err == nil {
					cfg.Server.Port = pi
				}
			} else {
				cfg.Server.Address = v
			}
		})
	}
	if v := os.Getenv("ZEROZERO_DATA_PATH"); v != "" {
		set(func() { cfg.Storage.DataPath = v })
	}
	if v := os.Getenv("ZEROZERO_API_KEY"); v != "" {
		set(func() { cfg.Security.APIKey = v })
	}
	if v := os.Getenv("ZEROZERO_CORS_ORIGINS"); v != "" {
		set(func() { cfg.Security.CORS.AllowedOrigins = parseList(v) })
	}
	if v := os.Getenv("ZEROZERO_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			set(func() { cfg.Security.RateLimit.RPS = f })
		}
	}
	if v := os.Getenv("ZEROZERO_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			set(func() { cfg.Security.RateLimit.Burst = n })
		}
	}
	if v := os.Getenv("ZEROZERO_ENCRYPTION_KEY_HEX"); v != "" {
		set(func() {
			cfg.Security.Encryption.Use = true
			cfg.Security.Encryption.KeyHex = v
		})
	}
	if v := os.Getenv("ZEROZERO_LOG_LEVEL"); v != "" {
		set(func() { cfg.Logging.Level = v })
	}
	if v := os.Getenv("ZEROZERO_RETENTION_CRON"); v != "" {
		set(func() {
			cfg.Retention.Enabled = true
			cfg.Retention.Cron = v
		})
	}
	if v := os.Getenv("ZEROZERO_QUEUE_TTL"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			set(func() { cfg.Queue.TTL = Duration(d) })
		}
	}
	if v := os.Getenv("ZEROZERO_RELAY_URL"); v != "" {
		set(func() { cfg.Relay.URL = v })
	}
	if v := os.Getenv("ZEROZERO_NOTIFY_URL"); v != "" {
		set(func() { cfg.Notify.URL = v })
	}
	if v := os.Getenv("ZEROZERO_NOTIFY_TOKEN"); v != "" {
		set(func() { cfg.Notify.Token = v })
	}
	return cfg, used
}

// EffectiveConfigResult is the merged startup configuration.
type EffectiveConfigResult struct {
	Config   *Config
	Addr     string
	DataPath string
	Source   string // "flags", "config", or "env"
}

// LoadEffectiveConfig picks the primary source: an explicit --config
// must exist and wins; explicit --addr/--data flags win next; then a
// present config file; env is the fallback. Addr and data path fall
// through to the other sources when the primary leaves them empty.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DataPath = fileCfg.Storage.DataPath
		res.Source = "config"
		return finish(res), nil
	}

	if flags.Set["addr"] || flags.Set["data"] {
		cfg := fileCfg
		if !fileExists {
			cfg = envCfg
		}
		addr := flags.Addr
		if !flags.Set["addr"] {
			if a := cfg.Addr(); a != "" {
				addr = a
			}
		}
		data := flags.Data
		if !flags.Set["data"] {
			if p := strings.TrimSpace(cfg.Storage.DataPath); p != "" {
				data = p
			}
		}
		res.Config = cfg
		res.Addr = addr
		res.DataPath = data
		res.Source = "flags"
		return finish(res), nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DataPath = fileCfg.Storage.DataPath
		res.Source = "config"
		return finish(res), nil
	}

	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.DataPath = envCfg.Storage.DataPath
	res.Source = "env"
	return finish(res), nil
}

func finish(res EffectiveConfigResult) EffectiveConfigResult {
	if res.Addr == "" {
		res.Addr = ":7117"
	}
	if strings.TrimSpace(res.DataPath) == "" {
		res.DataPath = DefaultDataPath
	}
	return res
}
