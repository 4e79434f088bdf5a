package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Krajiyah/ble-parcel/pkg/parcel"
	"github.com/Krajiyah/ble-parcel/pkg/store"
	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds everything a sender or receiver needs to run a transfer session
type Config struct {
	DeviceID     string        `toml:"device_id" yaml:"device_id"`
	Name         string        `toml:"name" yaml:"name"`
	MTU          int           `toml:"mtu" yaml:"mtu"`
	Ordering     string        `toml:"ordering" yaml:"ordering"`
	Encrypt      bool          `toml:"encrypt" yaml:"encrypt"`
	Secret       string        `toml:"secret" yaml:"secret"`
	ServerAddr   string        `toml:"server_addr" yaml:"server_addr"`
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	DialTimeout  time.Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	LogLevel     string        `toml:"log_level" yaml:"log_level"`
	Store        Store         `toml:"store" yaml:"store"`
}

// Store selects and bounds the transfer archive
type Store struct {
	Driver       string        `toml:"driver" yaml:"driver"`
	Path         string        `toml:"path" yaml:"path"`
	MaxPerDevice int           `toml:"max_per_device" yaml:"max_per_device"`
	MaxAge       time.Duration `toml:"max_age" yaml:"max_age"`
}

// Default returns a config usable without any file
func Default() Config {
	return Config{
		DeviceID:     uuid.New().String(),
		Name:         "ble-parcel",
		MTU:          util.MTU,
		Ordering:     parcel.SequenceOrder.String(),
		WriteTimeout: 5 * time.Second,
		DialTimeout:  10 * time.Second,
		LogLevel:     "info",
		Store:        Store{Driver: store.DriverMemory},
	}
}

// Load reads path over the defaults; the extension picks toml or yaml
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config load failed (%s)", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config parse failed (%s)", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config parse failed (%s)", path)
		}
	default:
		return Config{}, errors.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if strings.TrimSpace(cfg.DeviceID) == "" {
		cfg.DeviceID = uuid.New().String()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DeviceID) == "" {
		return errors.New("config missing device_id")
	}
	if c.MTU <= util.SequenceWidth {
		return errors.Wrapf(parcel.ErrInvalidMTU, "mtu %d", c.MTU)
	}
	if c.MTU > util.MaxParcelMTU {
		return errors.Errorf("config mtu %d exceeds the %d bytes one write command can carry", c.MTU, util.MaxParcelMTU)
	}
	if _, err := parcel.ParseOrdering(c.Ordering); err != nil {
		return errors.Wrap(err, "config ordering")
	}
	if c.Encrypt && c.Secret == "" {
		return errors.New("config secret required when encrypt is set")
	}
	if c.WriteTimeout < 0 || c.DialTimeout < 0 {
		return errors.New("config timeouts must not be negative")
	}
	switch c.Store.Driver {
	case "", store.DriverMemory:
	case store.DriverSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("config store.path required for sqlite")
		}
	default:
		return errors.Errorf("config store.driver %q unknown", c.Store.Driver)
	}
	if c.Store.MaxPerDevice < 0 || c.Store.MaxAge < 0 {
		return errors.New("config store retention must not be negative")
	}
	return nil
}

// OrderingMode returns the parsed reassembly ordering
func (c Config) OrderingMode() parcel.Ordering {
	o, err := parcel.ParseOrdering(c.Ordering)
	if err != nil {
		return parcel.SequenceOrder
	}
	return o
}

// Transform returns the payload transform both ends must agree on
func (c Config) Transform() parcel.Transform {
	if !c.Encrypt {
		return parcel.NopTransform{}
	}
	return parcel.NewAESTransform(c.Secret)
}

func (c Config) Retention() store.RetentionPolicy {
	return store.RetentionPolicy{MaxPerDevice: c.Store.MaxPerDevice, MaxAge: c.Store.MaxAge}
}

// OpenStore opens the archive described by the store section
func (c Config) OpenStore() (store.Store, error) {
	return store.Open(c.Store.Driver, c.Store.Path, c.Retention())
}

// LoadOrDefault is Load, or Default when path is empty
func LoadOrDefault(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}
