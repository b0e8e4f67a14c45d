// Package config loads daemon configuration from flags, environment
// variables and an optional TOML file.
package config

import (
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/settings"
)

const (
	// DefaultEnvPrefix prefixes environment overrides, e.g. PUMP_BROKER.
	DefaultEnvPrefix = "PUMP"
	// DefaultConfigName is looked up as /etc/pump-controller.toml.
	DefaultConfigName = "pump-controller"
	// DefaultConfigDir is searched for DefaultConfigName.
	DefaultConfigDir = "/etc"
	// DefaultDBPath is the settings database location.
	DefaultDBPath = "/var/lib/pump-controller/settings.db"
)

// Configuration keys. Flags, TOML keys and env vars share these names.
const (
	KeyConfig       = "config"
	KeyPoll         = "poll"
	KeyPin          = "pin"
	KeyChip         = "chip"
	KeyActiveLow    = "active-low"
	KeySimulate     = "simulate"
	KeyDB           = "db"
	KeyHTTP         = "http"
	KeyBroker       = "broker"
	KeyHeartbeat    = "heartbeat"
	KeyMDNS         = "mdns"
	KeyDefaultPulse = "default-pulse"
	KeyDefaultPause = "default-pause"
	KeyDebug        = "debug"
	KeyVerbose      = "verbose"
)

// ErrHelp is returned by Load when -h or --help was given.
var ErrHelp = pflag.ErrHelp

// Config is the resolved daemon configuration.
type Config struct {
	Poll         time.Duration
	Pin          int
	Chip         string
	ActiveLow    bool
	Simulate     bool
	DB           string // empty = settings kept in memory
	HTTP         string // empty = no HTTP server
	Broker       string // empty = no MQTT
	Heartbeat    time.Duration
	MDNS         bool
	DefaultPulse float64
	DefaultPause float64
	Debug        bool
	Verbose      bool

	// File is the config file that was read, if any.
	File string
}

// Option customises Load.
type Option func(*options)

type options struct {
	fs        afero.Fs
	envPrefix string
	name      string
}

// WithFs sets the filesystem config files are read from.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithEnvPrefix sets the environment variable prefix. Default is "PUMP".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) { o.envPrefix = prefix }
}

// WithName sets the program name shown in usage output.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// FlagSet returns the daemon's flags with their defaults.
func FlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String(KeyConfig, "", "Config file (default "+DefaultConfigDir+"/"+DefaultConfigName+".toml)")
	fs.Duration(KeyPoll, 100*time.Millisecond, "Controller polling interval")
	fs.Int(KeyPin, gpio.DefaultPin, "BCM pin number of the pump relay")
	fs.String(KeyChip, gpio.DefaultChip, "GPIO chip device")
	fs.Bool(KeyActiveLow, true, "Relay energises on a low output level")
	fs.Bool(KeySimulate, false, "Log relay writes instead of driving GPIO")
	fs.String(KeyDB, DefaultDBPath, "Settings database (empty to keep settings in memory)")
	fs.String(KeyHTTP, ":5000", "HTTP control address (empty to disable)")
	fs.String(KeyBroker, "", "MQTT broker address (empty to disable)")
	fs.Duration(KeyHeartbeat, 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.Bool(KeyMDNS, true, "Advertise the control page over mDNS")
	fs.Float64(KeyDefaultPulse, settings.DefaultPulse, "Pulse seconds when none is stored")
	fs.Float64(KeyDefaultPause, settings.DefaultPause, "Pause seconds when none is stored")
	fs.Bool(KeyDebug, false, "Enable debugging mode")
	fs.Bool(KeyVerbose, false, "Enable verbose logging")
	return fs
}

// Load parses args (without the program name) and merges them over
// environment variables, the config file and defaults, in that order
// of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	o := options{
		fs:        afero.NewOsFs(),
		envPrefix: DefaultEnvPrefix,
		name:      "pump-controller",
	}
	for _, opt := range opts {
		opt(&o)
	}

	flags := FlagSet(o.name)
	if err := flags.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, errors.New().Wrap(errors.ErrInvalidArgument, err)
	}

	v := viper.New()
	v.SetFs(o.fs)
	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.New().Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Poll:         v.GetDuration(KeyPoll),
		Pin:          v.GetInt(KeyPin),
		Chip:         v.GetString(KeyChip),
		ActiveLow:    v.GetBool(KeyActiveLow),
		Simulate:     v.GetBool(KeySimulate),
		DB:           v.GetString(KeyDB),
		HTTP:         v.GetString(KeyHTTP),
		Broker:       v.GetString(KeyBroker),
		Heartbeat:    v.GetDuration(KeyHeartbeat),
		MDNS:         v.GetBool(KeyMDNS),
		DefaultPulse: v.GetFloat64(KeyDefaultPulse),
		DefaultPause: v.GetFloat64(KeyDefaultPause),
		Debug:        v.GetBool(KeyDebug),
		Verbose:      v.GetBool(KeyVerbose),
		File:         v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfigFile reads --config if given, else the default file if it
// exists. An explicit file that cannot be read is an error.
func readConfigFile(v *viper.Viper) error {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errors.New().Wrap(errors.ErrReadConfig, err).WithMessage("Failed to read configuration " + path)
		}
		return nil
	}

	v.SetConfigName(DefaultConfigName)
	v.SetConfigType("toml")
	v.AddConfigPath(DefaultConfigDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if stderrors.As(err, &notFound) {
			return nil
		}
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Poll <= 0:
		return invalid(KeyPoll, c.Poll, "must be greater than zero")
	case c.Heartbeat < 0:
		return invalid(KeyHeartbeat, c.Heartbeat, "must not be negative")
	case c.Pin < 0:
		return invalid(KeyPin, c.Pin, "must not be negative")
	case !positive(c.DefaultPulse):
		return invalid(KeyDefaultPulse, c.DefaultPulse, "must be a positive number of seconds")
	case !positive(c.DefaultPause):
		return invalid(KeyDefaultPause, c.DefaultPause, "must be a positive number of seconds")
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func invalid(key string, value any, reason string) error {
	return errors.New().WithData(errors.ErrInvalidConfig, value).
		WithMessage(fmt.Sprintf("%s %s", key, reason))
}
