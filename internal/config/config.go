package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Port     uint `mapstructure:"port"`
	HttpLog  bool `mapstructure:"http_log"`

	MQTT    MQTTConfig         `mapstructure:"mqtt"`
	Modbus  ModbusServerConfig `mapstructure:"modbus"`
	Sim     SimConfig          `mapstructure:"sim"`
	Devices []DeviceConfig     `mapstructure:"devices"`
}

type MQTTConfig struct {
	Enable    bool
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

type ModbusServerConfig struct {
	Enable    bool
	ListenURL string `mapstructure:"listen_url"`
}

// SimConfig is the only runtime-tunable simulation knob set: the tick
// cadence and the seed. Seed 0 draws from entropy at boot.
type SimConfig struct {
	TickMode           string `mapstructure:"tick_mode"` // fixed | jitter
	TickIntervalMillis uint32 `mapstructure:"tick_interval_millis"`
	TickMinMillis      uint32 `mapstructure:"tick_min_millis"`
	TickMaxMillis      uint32 `mapstructure:"tick_max_millis"`
	Seed               uint64 `mapstructure:"seed"`
}

// DeviceConfig is one row of the startup device table. Address is opaque
// to the simulation and only passed through to protocol adapters.
type DeviceConfig struct {
	Name     string `mapstructure:"name"`
	Instance uint32 `mapstructure:"instance"`
	Type     string `mapstructure:"type"`
	Address  string `mapstructure:"address"`
}

// DefaultDevices is the fleet simulated when no device table is
// configured: five VAV boxes and two AHUs.
func DefaultDevices() []DeviceConfig {
	devices := make([]DeviceConfig, 0, 7)
	for i := uint32(1); i <= 5; i++ {
		devices = append(devices, DeviceConfig{
			Name:     fmt.Sprintf("VAV-%d", i),
			Instance: 100 + i,
			Type:     "VAV",
			Address:  "127.0.0.1:47808",
		})
	}
	for i := uint32(1); i <= 2; i++ {
		devices = append(devices, DeviceConfig{
			Name:     fmt.Sprintf("AHU-%d", i),
			Instance: 200 + i,
			Type:     "AHU",
			Address:  "127.0.0.1:47808",
		})
	}
	return devices
}

// Validate checks the cross-field constraints viper cannot express.
func (cfg *Config) Validate() error {
	switch cfg.Sim.TickMode {
	case "fixed":
		if cfg.Sim.TickIntervalMillis < 100 {
			return errors.New("config param sim.tick_interval_millis should be >= 100")
		}
	case "jitter":
		if cfg.Sim.TickMinMillis < 100 {
			return errors.New("config param sim.tick_min_millis should be >= 100")
		}
		if cfg.Sim.TickMaxMillis < cfg.Sim.TickMinMillis {
			return errors.New("config param sim.tick_max_millis should be >= sim.tick_min_millis")
		}
	default:
		return fmt.Errorf("config param sim.tick_mode should be fixed or jitter, got %q", cfg.Sim.TickMode)
	}

	if len(cfg.Devices) == 0 {
		return errors.New("device table is empty")
	}
	seen := make(map[uint32]string, len(cfg.Devices))
	names := make(map[string]bool, len(cfg.Devices))
	for _, d := range cfg.Devices {
		if d.Name == "" {
			return fmt.Errorf("device instance %d has no name", d.Instance)
		}
		if d.Type != "VAV" && d.Type != "AHU" {
			return fmt.Errorf("device %s has unsupported type %q", d.Name, d.Type)
		}
		if prev, ok := seen[d.Instance]; ok {
			return fmt.Errorf("device instance %d used by both %s and %s", d.Instance, prev, d.Name)
		}
		if names[d.Name] {
			return fmt.Errorf("device name %s used twice", d.Name)
		}
		seen[d.Instance] = d.Name
		names[d.Name] = true
	}

	if cfg.Modbus.Enable && cfg.Modbus.ListenURL == "" {
		return errors.New("config param modbus.listen_url is required when modbus is enabled")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
