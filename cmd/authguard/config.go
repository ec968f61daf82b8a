package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/authguard"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	backendFile   = "file"
	backendRedis  = "redis"
	backendMemory = "memory"
)

type cliConfig struct {
	Env     string        `koanf:"env"`
	Routes  string        `koanf:"routes"`
	Auth    authConfig    `koanf:"auth"`
	Session sessionConfig `koanf:"session"`
	Token   tokenConfig   `koanf:"token"`
	Refresh refreshConfig `koanf:"refresh"`
}

type authConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type sessionConfig struct {
	Backend string      `koanf:"backend"`
	File    string      `koanf:"file"`
	Redis   redisConfig `koanf:"redis"`
}

type redisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
	Name     string `koanf:"name"`
}

type tokenConfig struct {
	SigningMethod string        `koanf:"signing_method"`
	Secret        string        `koanf:"secret"`
	PublicKeyFile string        `koanf:"public_key_file"`
	Issuer        string        `koanf:"issuer"`
	Audience      string        `koanf:"audience"`
	Leeway        time.Duration `koanf:"leeway"`
}

type refreshConfig struct {
	Lead                   time.Duration `koanf:"lead"`
	KeepOnTransientFailure bool          `koanf:"keep_on_transient_failure"`
}

// flagKeys maps persistent flag names onto config keys. Flags missing here
// are command options and never reach the config.
var flagKeys = map[string]string{
	"env":             "env",
	"routes":          "routes",
	"auth-url":        "auth.url",
	"auth-timeout":    "auth.timeout",
	"session-backend": "session.backend",
	"session-file":    "session.file",
	"redis-addr":      "session.redis.addr",
	"redis-prefix":    "session.redis.prefix",
	"redis-name":      "session.redis.name",
	"token-method":    "token.signing_method",
	"token-secret":    "token.secret",
	"token-key":       "token.public_key_file",
	"token-issuer":    "token.issuer",
	"token-audience":  "token.audience",
	"token-leeway":    "token.leeway",
	"refresh-lead":    "refresh.lead",
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "authguard", "session")
}

// registerConfigFlags adds the flags that mirror config keys.
func registerConfigFlags(fs *pflag.FlagSet) {
	fs.String("env", envLocal, "environment: local, dev or prod")
	fs.String("routes", "", "route table YAML file")
	fs.String("auth-url", "http://localhost:8080", "authentication service base URL")
	fs.Duration("auth-timeout", 10*time.Second, "authentication service timeout")
	fs.String("session-backend", backendFile, "session persistence: file, redis or memory")
	fs.String("session-file", defaultSessionFile(), "session file path (file backend)")
	fs.String("redis-addr", "localhost:6379", "redis address (redis backend)")
	fs.String("redis-prefix", "authguard", "redis key prefix (redis backend)")
	fs.String("redis-name", "default", "redis session name (redis backend)")
	fs.String("token-method", "ed25519", "token signing method: ed25519 or hs256")
	fs.String("token-secret", "", "HS256 token secret")
	fs.String("token-key", "", "Ed25519 public key file (PEM or raw)")
	fs.String("token-issuer", "", "expected token issuer")
	fs.String("token-audience", "", "expected token audience")
	fs.Duration("token-leeway", 0, "clock skew allowed when checking expiry")
	fs.Duration("refresh-lead", time.Minute, "renew this long before the token expires")
}

// loadConfig merges the YAML file at path (optional) with flags. Flags set
// on the command line win over the file; flag defaults fill what the file
// leaves out.
func loadConfig(path string, fs *pflag.FlagSet) (cliConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cliConfig{}, oops.Code("CONFIG_LOAD").With("path", path).Wrap(err)
		}
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return cliConfig{}, oops.Code("CONFIG_LOAD").With("source", "flags").Wrap(err)
	}

	var cfg cliConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return cliConfig{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func (c cliConfig) Validate() error {
	switch c.Env {
	case envLocal, envDev, envProd:
	default:
		return oops.Code("CONFIG_INVALID").With("env", c.Env).Errorf("env must be local, dev or prod")
	}
	switch c.Session.Backend {
	case backendFile:
		if c.Session.File == "" {
			return oops.Code("CONFIG_INVALID").Errorf("session.file is required for the file backend")
		}
	case backendRedis:
		if c.Session.Redis.Addr == "" {
			return oops.Code("CONFIG_INVALID").Errorf("session.redis.addr is required for the redis backend")
		}
	case backendMemory:
	default:
		return oops.Code("CONFIG_INVALID").With("backend", c.Session.Backend).Errorf("unknown session backend")
	}
	if c.Auth.Timeout < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.timeout must be >= 0")
	}
	return nil
}

// storeConfig derives the Store settings. The CLI lives for one command, so
// automatic refresh is off; use the refresh command instead.
func (c cliConfig) storeConfig() (authguard.Config, error) {
	cfg := authguard.DefaultConfig()
	cfg.Login.Timeout = c.Auth.Timeout
	cfg.Refresh.Timeout = c.Auth.Timeout
	cfg.Refresh.Auto = false
	cfg.Refresh.Lead = c.Refresh.Lead
	cfg.Refresh.KeepOnTransientFailure = c.Refresh.KeepOnTransientFailure

	cfg.Token.SigningMethod = c.Token.SigningMethod
	cfg.Token.Issuer = c.Token.Issuer
	cfg.Token.Audience = c.Token.Audience
	cfg.Token.Leeway = c.Token.Leeway
	if c.Token.Secret != "" {
		cfg.Token.Secret = []byte(c.Token.Secret)
	}
	if c.Token.PublicKeyFile != "" {
		key, err := os.ReadFile(c.Token.PublicKeyFile)
		if err != nil {
			return authguard.Config{}, oops.Code("CONFIG_INVALID").With("path", c.Token.PublicKeyFile).Wrap(err)
		}
		cfg.Token.PublicKey = key
	}

	if err := cfg.Validate(); err != nil {
		return authguard.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}
