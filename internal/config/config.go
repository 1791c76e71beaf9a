// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "oregonrx"
	ConfigType    = "yaml"
	DefaultConfig = `# Oregon Scientific Decoder Configuration

# Audio input settings (the 433 MHz receiver output wired into line-in)
device_index: -1        # -1 for default capture device
sample_rate: 96000      # Audio sample rate in Hz (>= 48000 recommended;
                        # the protocol's shortest pulse is ~490 us)
channels: 1             # Number of channels (1=mono)
buffer_size: 512        # Audio buffer size in frames

# Envelope follower
attack_ms: 0.05         # Envelope rise time constant in milliseconds
release_ms: 0.2         # Envelope fall time constant in milliseconds

# Pulse detection
threshold: 0.4          # Detection threshold (0.0-1.0) against the AGC peak
hysteresis_us: 100      # Level must hold this long (microseconds) before a
                        # mark/space transition is accepted
invert: false           # Invert the detected level (receivers that idle high)

# Automatic gain control
agc_enabled: true       # Normalize input levels before thresholding
agc_decay: 0.9995       # AGC peak decay rate per sample (0.99-0.99999)
agc_attack: 0.1         # AGC attack rate (0.0-1.0), response to louder signals
agc_warmup_ms: 250      # Calibration time before detection starts

# Output
debug: false            # Enable debug output (decode counters on exit)
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio input settings
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Channels    int     `mapstructure:"channels"`
	BufferSize  int     `mapstructure:"buffer_size"`

	// Envelope follower
	AttackMs  float64 `mapstructure:"attack_ms"`
	ReleaseMs float64 `mapstructure:"release_ms"`

	// Pulse detection
	Threshold    float64 `mapstructure:"threshold"`
	HysteresisUs float64 `mapstructure:"hysteresis_us"`
	Invert       bool    `mapstructure:"invert"`

	// Automatic gain control
	AGCEnabled  bool    `mapstructure:"agc_enabled"`
	AGCDecay    float64 `mapstructure:"agc_decay"`
	AGCAttack   float64 `mapstructure:"agc_attack"`
	AGCWarmupMs float64 `mapstructure:"agc_warmup_ms"`

	// Output
	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/oregonrx/
func Init() error {
	// Set defaults
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 96000)
	viper.SetDefault("channels", 1)
	viper.SetDefault("buffer_size", 512)
	viper.SetDefault("attack_ms", 0.05)
	viper.SetDefault("release_ms", 0.2)
	viper.SetDefault("threshold", 0.4)
	viper.SetDefault("hysteresis_us", 100)
	viper.SetDefault("invert", false)
	viper.SetDefault("agc_enabled", true)
	viper.SetDefault("agc_decay", 0.9995)
	viper.SetDefault("agc_attack", 0.1)
	viper.SetDefault("agc_warmup_ms", 250)
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/oregonrx/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio input settings
	if s.SampleRate < 8000 || s.SampleRate > 384000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 384000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}
	if s.BufferSize&(s.BufferSize-1) != 0 {
		errs = append(errs, fmt.Errorf("buffer_size should be a power of 2, got %d", s.BufferSize))
	}

	// Envelope follower. The attack must stay well below the protocol's
	// shortest pulse or the envelope never crosses the threshold in time.
	if s.AttackMs <= 0 || s.AttackMs > 0.5 {
		errs = append(errs, fmt.Errorf("attack_ms must be between 0 and 0.5 ms, got %v", s.AttackMs))
	}
	if s.ReleaseMs <= 0 || s.ReleaseMs > 2 {
		errs = append(errs, fmt.Errorf("release_ms must be between 0 and 2 ms, got %v", s.ReleaseMs))
	}

	// Pulse detection
	if s.Threshold < 0.0 || s.Threshold > 1.0 {
		errs = append(errs, fmt.Errorf("threshold must be between 0.0 and 1.0, got %v", s.Threshold))
	}
	if s.HysteresisUs < 0 || s.HysteresisUs > 400 {
		errs = append(errs, fmt.Errorf("hysteresis_us must be between 0 and 400 us, got %v", s.HysteresisUs))
	}

	// Automatic gain control
	if s.AGCDecay < 0.99 || s.AGCDecay > 0.99999 {
		errs = append(errs, fmt.Errorf("agc_decay must be between 0.99 and 0.99999, got %v", s.AGCDecay))
	}
	if s.AGCAttack < 0.0 || s.AGCAttack > 1.0 {
		errs = append(errs, fmt.Errorf("agc_attack must be between 0.0 and 1.0, got %v", s.AGCAttack))
	}
	if s.AGCWarmupMs < 0 || s.AGCWarmupMs > 5000 {
		errs = append(errs, fmt.Errorf("agc_warmup_ms must be between 0 and 5000 ms, got %v", s.AGCWarmupMs))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
