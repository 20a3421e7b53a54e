// Package config loads the supervisor's configuration: documented defaults
// (spec.md §6), an optional YAML file overlaying them, and finally a
// handful of command-line flags for the values operators tune most often —
// the same two-layer shape as cmd/boiler-sensor/main.go, which defines
// flag.Duration/flag.String flags with baked-in defaults and parses them
// once at startup.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

// McbStatusSource selects which channel is authoritative for MCB state, per
// SPEC_FULL.md §5.1.
type McbStatusSource string

const (
	McbStatusSourceDevice McbStatusSource = "device"
	McbStatusSourceMQTT   McbStatusSource = "mqtt"
)

// MillisDuration is a time.Duration that reads and writes as a plain
// millisecond integer in YAML, matching every *Ms-suffixed field spec.md §6
// names (pollingIntervalMs, switchOffCooldownMs, ...).
type MillisDuration time.Duration

// Duration returns the underlying time.Duration.
func (m MillisDuration) Duration() time.Duration {
	return time.Duration(m)
}

func (m MillisDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(m).Milliseconds(), nil
}

func (m *MillisDuration) UnmarshalYAML(value *yaml.Node) error {
	var ms int64
	if err := value.Decode(&ms); err != nil {
		return fmt.Errorf("config: expected an integer millisecond count: %w", err)
	}
	*m = MillisDuration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Config is the supervisor's fully-resolved configuration.
type Config struct {
	AmperageThresholdA      float64        `yaml:"amperageThreshold"`
	PollingInterval         MillisDuration `yaml:"pollingIntervalMs"`
	SwitchOffCooldown       MillisDuration `yaml:"switchOffCooldownMs"`
	TemperatureAlertCelsius float64        `yaml:"temperatureAlertCelsius"`

	NotificationCooldown NotificationCooldownConfig `yaml:"notificationCooldownMs"`
	MCB                  MCBConfig                  `yaml:"mcb"`
	MQTT                 MQTTConfig                 `yaml:"mqtt"`
	Ventilator           VentilatorConfig           `yaml:"ventilator"`
	FloorHeating         FloorHeatingConfig         `yaml:"floorHeating"`
	Flic                 FlicConfig                 `yaml:"flic"`
	GPIOButton           GPIOButtonConfig           `yaml:"gpioButton"`
	Notifier             NotifierConfig             `yaml:"notifier"`
	HTTP                 HTTPConfig                 `yaml:"http"`
}

// NotificationCooldownConfig mirrors internal/ratelimit's per-kind ledger.
type NotificationCooldownConfig struct {
	SafetyShutdown   MillisDuration `yaml:"safetyShutdown"`
	TemperatureAlert MillisDuration `yaml:"temperatureAlert"`
}

// MCBConfig configures how the MCB's state is reached and which channel is
// authoritative.
type MCBConfig struct {
	StatusSource   McbStatusSource `yaml:"statusSource"`
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	DeviceID       string          `yaml:"deviceId"`
	LocalKey       string          `yaml:"localKey"`
	CommandTimeout MillisDuration  `yaml:"commandTimeoutMs"`
}

// MQTTConfig configures the broker internal/transport/mqtt connects to for
// every sensor/button/fallback-MCB subscription.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topicPrefix"`
}

// VentilatorConfig matches spec.md §6's ventilator.{...} block.
type VentilatorConfig struct {
	IP               string         `yaml:"ip"`
	DelayOffMinutes  int            `yaml:"delayOffMinutes"`
	KeepAliveMinutes int            `yaml:"keepAliveMinutes"`
	Timeout          MillisDuration `yaml:"timeoutMs"`
}

// FloorHeatingConfig matches spec.md §6's floorHeating.{...} block. Host
// and Port name the thermostat's own local-key-value endpoint, separate
// from the MCB's.
type FloorHeatingConfig struct {
	Host            string         `yaml:"host"`
	Port            int            `yaml:"port"`
	DeviceID        string         `yaml:"deviceId"`
	LocalKey        string         `yaml:"localKey"`
	ProtocolVersion string         `yaml:"protocolVersion"`
	TargetOnC       float64        `yaml:"targetOnC"`
	TargetOffC      float64        `yaml:"targetOffC"`
	PollInterval    MillisDuration `yaml:"pollIntervalMs"`
	Timeout         MillisDuration `yaml:"timeoutMs"`
}

// FlicConfig matches spec.md §6's flic.{click,doubleClick,hold} mapping.
// Values are one of Toggle, ForceOn, ForceOff, None.
type FlicConfig struct {
	Click       string `yaml:"click"`
	DoubleClick string `yaml:"doubleClick"`
	Hold        string `yaml:"hold"`
}

// GPIOButtonConfig configures the optional local wired button
// (SPEC_FULL.md §5.4), off by default.
type GPIOButtonConfig struct {
	Enabled bool   `yaml:"enabled"`
	Chip    string `yaml:"chip"`
	Line    int    `yaml:"line"`
}

// NotifierConfig configures the outbound text-notification endpoint.
type NotifierConfig struct {
	URL     string         `yaml:"url"`
	Timeout MillisDuration `yaml:"timeoutMs"`
}

// HTTPConfig configures the operator/snapshot HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the documented defaults from spec.md §6.
func Default() Config {
	return Config{
		AmperageThresholdA:      25,
		PollingInterval:         MillisDuration(5000 * time.Millisecond),
		SwitchOffCooldown:       MillisDuration(10000 * time.Millisecond),
		TemperatureAlertCelsius: 85,
		NotificationCooldown: NotificationCooldownConfig{
			SafetyShutdown:   MillisDuration(60000 * time.Millisecond),
			TemperatureAlert: MillisDuration(300000 * time.Millisecond),
		},
		MCB: MCBConfig{
			StatusSource:   McbStatusSourceDevice,
			Port:           6668,
			CommandTimeout: MillisDuration(5 * time.Second),
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://127.0.0.1:1883",
			TopicPrefix: "sauna",
		},
		Ventilator: VentilatorConfig{
			DelayOffMinutes:  60,
			KeepAliveMinutes: 25,
			Timeout:          MillisDuration(5 * time.Second),
		},
		FloorHeating: FloorHeatingConfig{
			Port:         6668,
			TargetOnC:    21,
			TargetOffC:   5,
			PollInterval: MillisDuration(30 * time.Second),
			Timeout:      MillisDuration(5 * time.Second),
		},
		Flic: FlicConfig{
			Click:       "Toggle",
			DoubleClick: "ForceOff",
			Hold:        "ForceOn",
		},
		GPIOButton: GPIOButtonConfig{
			Enabled: false,
			Chip:    "/dev/gpiochip0",
		},
		Notifier: NotifierConfig{
			Timeout: MillisDuration(10 * time.Second),
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load returns Default() overlaid with the YAML file at path, if path is
// non-empty and the file exists. Fields absent from the file keep their
// default value — yaml.Unmarshal only overwrites fields present in the
// document.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// RegisterFlags binds the handful of values operators tune most often at
// the command line directly to cfg's fields, using cfg's current values
// (post-YAML) as the flags' defaults — the same flag.String/flag.Duration
// idiom as cmd/boiler-sensor/main.go. Call fs.Parse after this to apply any
// overrides.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Float64Var(&cfg.AmperageThresholdA, "amperage-threshold", cfg.AmperageThresholdA, "Per-phase amperage threshold that trips the safety shutdown")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", cfg.MQTT.Broker, "MQTT broker address")
	fs.StringVar(&cfg.HTTP.Addr, "http", cfg.HTTP.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Notifier.URL, "notifier-url", cfg.Notifier.URL, "Outbound notifier endpoint")

	fs.String("mcb-status-source", string(cfg.MCB.StatusSource), `MCB authoritative status source: "device" or "mqtt"`)
}

// ApplyMcbStatusSourceFlag resolves the -mcb-status-source flag value into
// cfg after fs.Parse, since flag.String cannot write directly into a
// McbStatusSource-typed field.
func ApplyMcbStatusSourceFlag(fs *flag.FlagSet, cfg *Config) error {
	f := fs.Lookup("mcb-status-source")
	if f == nil {
		return nil
	}
	v := f.Value.String()
	switch McbStatusSource(v) {
	case McbStatusSourceDevice, McbStatusSourceMQTT:
		cfg.MCB.StatusSource = McbStatusSource(v)
		return nil
	default:
		return fmt.Errorf("config: invalid -mcb-status-source %q", v)
	}
}

// FlicMapping resolves the configured click/double-click/hold strings into
// adapters.FlicAction values, defaulting to FlicNone for unrecognised text.
func (c Config) FlicMapping() map[adapters.ButtonAction]adapters.FlicAction {
	parse := func(s string) adapters.FlicAction {
		switch s {
		case "Toggle":
			return adapters.FlicToggle
		case "ForceOn":
			return adapters.FlicForceOn
		case "ForceOff":
			return adapters.FlicForceOff
		default:
			return adapters.FlicNone
		}
	}
	return map[adapters.ButtonAction]adapters.FlicAction{
		adapters.ButtonClick:       parse(c.Flic.Click),
		adapters.ButtonDoubleClick: parse(c.Flic.DoubleClick),
		adapters.ButtonHold:        parse(c.Flic.Hold),
	}
}
