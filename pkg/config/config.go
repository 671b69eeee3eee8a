package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

//go:embed config.toml.sample
var configTemplate string

const (
	DefaultAPIURL     = "http://localhost:5000"
	DefaultShellHost  = "localhost"
	DefaultShellPort  = 8787
	DefaultSpatialKM  = 500.0
	defaultTimeout    = 60 * time.Second
	defaultListWait   = 10 * time.Second
	defaultFade       = 2 * time.Second
	defaultGrace      = 2 * time.Second
	defaultSnapshotTT = 30 * 24 * time.Hour
)

type Config struct {
	APIURL           string          `toml:"api_url"`
	StorageDir       string          `toml:"storage_dir"`
	RequestTimeout   Duration        `toml:"request_timeout"`
	ListTimeout      Duration        `toml:"list_timeout"`
	SnapshotMaxAge   Duration        `toml:"snapshot_max_age"`
	DefaultStartYear int64           `toml:"default_start_year"`
	DefaultEndYear   int64           `toml:"default_end_year"`
	ErasFile         string          `toml:"eras_file,omitempty"`
	Crossfade        CrossfadeConfig `toml:"crossfade"`
	Clusters         ClustersConfig  `toml:"clusters"`
	Highlight        HighlightConfig `toml:"highlight"`
	Spatial          SpatialConfig   `toml:"spatial"`
	Shell            ShellConfig     `toml:"shell"`
}

type CrossfadeConfig struct {
	Duration      Duration `toml:"duration"`
	ReducedMotion bool     `toml:"reduced_motion"`
}

type ClustersConfig struct {
	Grace Duration `toml:"grace"`
}

type HighlightConfig struct {
	SettleDelay Duration `toml:"settle_delay"`
}

type SpatialConfig struct {
	DefaultRadius float64 `toml:"default_radius"`
}

type ShellConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// envOverrides lists the settings that can come from the environment. Unset
// variables leave the pointers nil.
type envOverrides struct {
	APIURL            *string        `env:"TIMETRIP_API_URL"`
	StorageDir        *string        `env:"TIMETRIP_STORAGE_DIR"`
	RequestTimeout    *time.Duration `env:"TIMETRIP_REQUEST_TIMEOUT"`
	ListTimeout       *time.Duration `env:"TIMETRIP_LIST_TIMEOUT"`
	ErasFile          *string        `env:"TIMETRIP_ERAS_FILE"`
	CrossfadeDuration *time.Duration `env:"TIMETRIP_CROSSFADE_DURATION"`
	ReducedMotion     *bool          `env:"TIMETRIP_REDUCED_MOTION"`
	ClusterGrace      *time.Duration `env:"TIMETRIP_CLUSTER_GRACE"`
	SettleDelay       *time.Duration `env:"TIMETRIP_SETTLE_DELAY"`
	SpatialRadius     *float64       `env:"TIMETRIP_SPATIAL_RADIUS"`
	ShellHost         *string        `env:"TIMETRIP_SHELL_HOST"`
	ShellPort         *int           `env:"TIMETRIP_SHELL_PORT"`
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	return &Config{
		APIURL:           DefaultAPIURL,
		StorageDir:       storageDir,
		RequestTimeout:   Duration{defaultTimeout},
		ListTimeout:      Duration{defaultListWait},
		SnapshotMaxAge:   Duration{defaultSnapshotTT},
		DefaultStartYear: timeline.DefaultStartYear,
		DefaultEndYear:   timeline.DefaultEndYear,
		Crossfade:        CrossfadeConfig{Duration: Duration{defaultFade}},
		Clusters:         ClustersConfig{Grace: Duration{defaultGrace}},
		Spatial:          SpatialConfig{DefaultRadius: DefaultSpatialKM},
		Shell:            ShellConfig{Host: DefaultShellHost, Port: DefaultShellPort},
	}, nil
}

// LoadConfig reads configPath over the defaults, applies TIMETRIP_*
// environment overrides and validates the result. A missing file yields the
// defaults.
func LoadConfig(configPath string) (*Config, error) {
	config, err := GetDefaultConfig()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	config.fillDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides settings from TIMETRIP_* environment variables.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setString(&c.APIURL, o.APIURL)
	setString(&c.StorageDir, o.StorageDir)
	setString(&c.ErasFile, o.ErasFile)
	setString(&c.Shell.Host, o.ShellHost)
	setDuration(&c.RequestTimeout, o.RequestTimeout)
	setDuration(&c.ListTimeout, o.ListTimeout)
	setDuration(&c.Crossfade.Duration, o.CrossfadeDuration)
	setDuration(&c.Clusters.Grace, o.ClusterGrace)
	setDuration(&c.Highlight.SettleDelay, o.SettleDelay)
	if o.ReducedMotion != nil {
		c.Crossfade.ReducedMotion = *o.ReducedMotion
	}
	if o.SpatialRadius != nil {
		c.Spatial.DefaultRadius = *o.SpatialRadius
	}
	if o.ShellPort != nil {
		c.Shell.Port = *o.ShellPort
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setDuration(dst *Duration, v *time.Duration) {
	if v != nil {
		dst.Duration = *v
	}
}

// fillDefaults restores defaults for values a file explicitly zeroed.
func (c *Config) fillDefaults() {
	if c.StorageDir == "" {
		if dir, err := GetDefaultStorageDir(); err == nil {
			c.StorageDir = dir
		}
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.RequestTimeout.Duration == 0 {
		c.RequestTimeout = Duration{defaultTimeout}
	}
	if c.ListTimeout.Duration == 0 {
		c.ListTimeout = Duration{defaultListWait}
	}
	if c.SnapshotMaxAge.Duration == 0 {
		c.SnapshotMaxAge = Duration{defaultSnapshotTT}
	}
	if c.DefaultStartYear == 0 && c.DefaultEndYear == 0 {
		c.DefaultStartYear, c.DefaultEndYear = timeline.DefaultStartYear, timeline.DefaultEndYear
	}
	if c.Crossfade.Duration.Duration == 0 {
		c.Crossfade.Duration = Duration{defaultFade}
	}
	if c.Clusters.Grace.Duration == 0 {
		c.Clusters.Grace = Duration{defaultGrace}
	}
	if c.Spatial.DefaultRadius == 0 {
		c.Spatial.DefaultRadius = DefaultSpatialKM
	}
	if c.Shell.Host == "" {
		c.Shell.Host = DefaultShellHost
	}
	if c.Shell.Port == 0 {
		c.Shell.Port = DefaultShellPort
	}
}

// Validate rejects settings the explorer cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("api_url %q must start with http:// or https://", c.APIURL)
	}
	if err := timeline.ValidateRange(c.DefaultStartYear, c.DefaultEndYear); err != nil {
		return fmt.Errorf("default range: %w", err)
	}
	for name, d := range map[string]Duration{
		"request_timeout":        c.RequestTimeout,
		"list_timeout":           c.ListTimeout,
		"crossfade.duration":     c.Crossfade.Duration,
		"clusters.grace":         c.Clusters.Grace,
		"highlight.settle_delay": c.Highlight.SettleDelay,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Spatial.DefaultRadius <= 0 {
		return fmt.Errorf("spatial.default_radius must be positive")
	}
	if c.Shell.Port < 1 || c.Shell.Port > 65535 {
		return fmt.Errorf("shell.port %d out of range", c.Shell.Port)
	}
	return nil
}

// ShellAddr returns host:port for the page shell server.
func (c *Config) ShellAddr() string {
	return fmt.Sprintf("%s:%d", c.Shell.Host, c.Shell.Port)
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func (c *Config) generateConfigTemplate() (string, error) {
	storageDir := c.StorageDir
	if storageDir == "" {
		var err error
		storageDir, err = GetDefaultStorageDir()
		if err != nil {
			return "", fmt.Errorf("getting default storage directory: %w", err)
		}
	}

	// Replace the placeholder storage_dir with the actual path
	template := strings.Replace(configTemplate, "/home/user/.local/share/timetrip", storageDir, 1)
	if c.APIURL != "" && c.APIURL != DefaultAPIURL {
		template = strings.Replace(template, `api_url = "`+DefaultAPIURL+`"`, `api_url = "`+c.APIURL+`"`, 1)
	}
	return template, nil
}

// GetDefaultStorageDir returns the default storage directory for databases
func GetDefaultStorageDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "timetrip")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetConfigDir returns the configuration directory for timetrip
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "timetrip")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
