// Package config loads the controller configuration from YAML, a .env file
// and BMS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/bms-controller/internal/bms"
	"github.com/sweeney/bms-controller/internal/gpio"
)

// Config holds all daemon configuration.
type Config struct {
	Name string `yaml:"name"`

	Battery struct {
		Chemistry       string    `yaml:"chemistry"`
		NominalCapacity float64   `yaml:"nominal_capacity_ah"`
		Overrides       Overrides `yaml:"overrides"`
	} `yaml:"battery"`

	Board struct {
		MaxCurrent      float64 `yaml:"max_current_a"`
		ShuntResistance float64 `yaml:"shunt_resistance_mohm"`
	} `yaml:"board"`

	Control struct {
		CycleMs  int64 `yaml:"cycle_ms"`
		SettleMs int64 `yaml:"settle_ms"`
		StaleMs  int64 `yaml:"stale_ms"`
	} `yaml:"control"`

	GPIO struct {
		Chip         string `yaml:"chip"`
		ChargePin    int    `yaml:"charge_pin"`
		DischargePin int    `yaml:"discharge_pin"`
		ActiveLow    bool   `yaml:"active_low"`
	} `yaml:"gpio"`

	MQTT struct {
		Broker     string `yaml:"broker"`
		ClientID   string `yaml:"client_id"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		OutboxSize int    `yaml:"outbox_size"`
	} `yaml:"mqtt"`

	Heartbeat struct {
		Cron string `yaml:"cron"`
	} `yaml:"heartbeat"`

	HTTP struct {
		Port string `yaml:"port"`
	} `yaml:"http"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
}

// Overrides replace individual protection thresholds after the chemistry
// preset has been applied. Required for the custom chemistry.
type Overrides struct {
	CellChgVoltage     *float64 `yaml:"cell_chg_voltage"`
	CellDisVoltage     *float64 `yaml:"cell_dis_voltage"`
	CellOVLimit        *float64 `yaml:"cell_ov_limit"`
	CellOVReset        *float64 `yaml:"cell_ov_reset"`
	CellUVLimit        *float64 `yaml:"cell_uv_limit"`
	CellUVReset        *float64 `yaml:"cell_uv_reset"`
	DisOTLimit         *float64 `yaml:"dis_ot_limit"`
	DisUTLimit         *float64 `yaml:"dis_ut_limit"`
	ChgOTLimit         *float64 `yaml:"chg_ot_limit"`
	ChgUTLimit         *float64 `yaml:"chg_ut_limit"`
	BalCellVoltageDiff *float64 `yaml:"bal_cell_voltage_diff"`
	BalCellVoltageMin  *float64 `yaml:"bal_cell_voltage_min"`
	BalIdleDelayS      *int64   `yaml:"bal_idle_delay_s"`
	DiodeOnCurrent     *float64 `yaml:"diode_on_current"`
	DiodeOffCurrent    *float64 `yaml:"diode_off_current"`
	AutoBalancing      *bool    `yaml:"auto_balancing"`
}

// Default values applied by Load.
const (
	DefaultName            = "bms"
	DefaultChemistry       = "lfp"
	DefaultShuntResistance = 1.0 // mOhm
	DefaultCycleMs         = 100
	DefaultSettleMs        = 2000
	DefaultStaleMs         = 5000
	DefaultBroker          = "tcp://localhost:1883"
	DefaultOutboxSize      = 1000
	DefaultHeartbeatCron   = "0 */15 * * * *"
	DefaultHTTPPort        = ":8080"
)

// Load reads config from a YAML file, loads envFile into the environment,
// then applies BMS_* environment variable overrides and defaults.
// A missing YAML or env file is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BMS_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("BMS_CHEMISTRY"); v != "" {
		c.Battery.Chemistry = v
	}
	if v := os.Getenv("BMS_NOMINAL_CAPACITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BMS_NOMINAL_CAPACITY: %w", err)
		}
		c.Battery.NominalCapacity = f
	}
	if v := os.Getenv("BMS_MAX_CURRENT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BMS_MAX_CURRENT: %w", err)
		}
		c.Board.MaxCurrent = f
	}
	if v := os.Getenv("BMS_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("BMS_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("BMS_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("BMS_HEARTBEAT_CRON"); v != "" {
		c.Heartbeat.Cron = v
	}
	if v := os.Getenv("BMS_HTTP_PORT"); v != "" {
		c.HTTP.Port = v
	}
	if v := os.Getenv("BMS_SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Battery.Chemistry == "" {
		c.Battery.Chemistry = DefaultChemistry
	}
	if c.Board.ShuntResistance == 0 {
		c.Board.ShuntResistance = DefaultShuntResistance
	}
	if c.Control.CycleMs == 0 {
		c.Control.CycleMs = DefaultCycleMs
	}
	if c.Control.SettleMs == 0 {
		c.Control.SettleMs = DefaultSettleMs
	}
	if c.Control.StaleMs == 0 {
		c.Control.StaleMs = DefaultStaleMs
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = gpio.DefaultChip
	}
	if c.GPIO.ChargePin == 0 {
		c.GPIO.ChargePin = gpio.DefaultPinCharge
	}
	if c.GPIO.DischargePin == 0 {
		c.GPIO.DischargePin = gpio.DefaultPinDischarge
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = DefaultBroker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "bms-controller-" + c.Name
	}
	if c.MQTT.OutboxSize == 0 {
		c.MQTT.OutboxSize = DefaultOutboxSize
	}
	if c.Heartbeat.Cron == "" {
		c.Heartbeat.Cron = DefaultHeartbeatCron
	}
	if c.HTTP.Port == "" {
		c.HTTP.Port = DefaultHTTPPort
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Battery.NominalCapacity <= 0 {
		return fmt.Errorf("battery.nominal_capacity_ah must be positive")
	}
	if c.Board.MaxCurrent <= 0 {
		return fmt.Errorf("board.max_current_a must be positive")
	}
	if c.Control.CycleMs <= 0 {
		return fmt.Errorf("control.cycle_ms must be positive")
	}
	if c.MQTT.OutboxSize < 0 {
		return fmt.Errorf("mqtt.outbox_size must not be negative")
	}
	if c.GPIO.ChargePin == c.GPIO.DischargePin {
		return fmt.Errorf("gpio.charge_pin and gpio.discharge_pin must differ")
	}
	_, _, err := c.Protection()
	return err
}

// BoardLimits returns the hardware limits of the board.
func (c *Config) BoardLimits() bms.Board {
	return bms.Board{
		MaxCurrent:      c.Board.MaxCurrent,
		ShuntResistance: c.Board.ShuntResistance,
	}
}

// Protection builds the protection config from the chemistry preset and
// overrides, and validates it against the board.
func (c *Config) Protection() (bms.Config, bms.Board, error) {
	var conf bms.Config
	board := c.BoardLimits()

	chem, err := bms.ParseChemistry(c.Battery.Chemistry)
	if err != nil {
		return conf, board, fmt.Errorf("battery.chemistry: %w", err)
	}
	bms.InitConfig(&conf, chem, c.Battery.NominalCapacity, board)
	c.Battery.Overrides.apply(&conf)

	if err := conf.Validate(board); err != nil {
		return conf, board, fmt.Errorf("protection config: %w", err)
	}
	return conf, board, nil
}

// Cycle returns the control loop period.
func (c *Config) Cycle() time.Duration {
	return time.Duration(c.Control.CycleMs) * time.Millisecond
}

// Settle returns the start-up settle delay.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Control.SettleMs) * time.Millisecond
}

// StaleAfter returns the age after which measurements are reported stale.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Control.StaleMs) * time.Millisecond
}

func (o Overrides) apply(conf *bms.Config) {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&conf.CellChgVoltage, o.CellChgVoltage)
	set(&conf.CellDisVoltage, o.CellDisVoltage)
	set(&conf.CellOVLimit, o.CellOVLimit)
	set(&conf.CellOVReset, o.CellOVReset)
	set(&conf.CellUVLimit, o.CellUVLimit)
	set(&conf.CellUVReset, o.CellUVReset)
	set(&conf.DisOTLimit, o.DisOTLimit)
	set(&conf.DisUTLimit, o.DisUTLimit)
	set(&conf.ChgOTLimit, o.ChgOTLimit)
	set(&conf.ChgUTLimit, o.ChgUTLimit)
	set(&conf.BalCellVoltageDiff, o.BalCellVoltageDiff)
	set(&conf.BalCellVoltageMin, o.BalCellVoltageMin)
	set(&conf.DiodeOnCurrent, o.DiodeOnCurrent)
	set(&conf.DiodeOffCurrent, o.DiodeOffCurrent)
	if o.BalIdleDelayS != nil {
		conf.BalIdleDelay = time.Duration(*o.BalIdleDelayS) * time.Second
	}
	if o.AutoBalancing != nil {
		conf.AutoBalancing = *o.AutoBalancing
	}
}

// Redacted returns a copy safe for printing.
func (c *Config) Redacted() Config {
	out := *c
	if out.MQTT.Password != "" {
		out.MQTT.Password = "***"
	}
	return out
}

// Marshal renders the config as YAML with secrets redacted.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
