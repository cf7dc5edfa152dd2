package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Machine  MachineConfig  `mapstructure:"machine" yaml:"machine"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Journal  JournalConfig  `mapstructure:"journal" yaml:"journal"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	InfluxDB InfluxDBConfig `mapstructure:"influxdb" yaml:"influxdb"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port" yaml:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port" yaml:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// MachineConfig carries the physical layout and timing of the biscuit line.
// Temperatures are in degrees, durations in (fractional) seconds.
type MachineConfig struct {
	ConveyorLength                int     `mapstructure:"conveyor_length" yaml:"conveyor_length"`
	OvenLength                    int     `mapstructure:"oven_length" yaml:"oven_length"`
	OvenPosition                  int     `mapstructure:"oven_position" yaml:"oven_position"`
	OvenWarmupDegreesPerPeriod    float64 `mapstructure:"oven_warmup_degrees_per_period" yaml:"oven_warmup_degrees_per_period"`
	OvenCoolDownDegreesPerPeriod  float64 `mapstructure:"oven_cool_down_degrees_per_period" yaml:"oven_cool_down_degrees_per_period"`
	DesiredMinimumOvenTemperature float64 `mapstructure:"desired_minimum_oven_temperature" yaml:"desired_minimum_oven_temperature"`
	DesiredMaximumOvenTemperature float64 `mapstructure:"desired_maximum_oven_temperature" yaml:"desired_maximum_oven_temperature"`
	MotorPulseDurationSeconds     float64 `mapstructure:"motor_pulse_duration_seconds" yaml:"motor_pulse_duration_seconds"`
	OvenSpeedPeriodSeconds        float64 `mapstructure:"oven_speed_period_length_in_seconds" yaml:"oven_speed_period_length_in_seconds"`
}

// Auth Configuration
type AuthConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	JWTSecretEnv string        `mapstructure:"jwt_secret_env" yaml:"jwt_secret_env"`
	TokenTTL     time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	Issuer       string        `mapstructure:"issuer" yaml:"issuer"`
}

// JournalConfig selects where the event journal is written. An empty driver
// disables the journal.
type JournalConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	Database       string `mapstructure:"database" yaml:"database"`
	User           string `mapstructure:"user" yaml:"user"`
	Password       string `mapstructure:"password" yaml:"-"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	BrokerURL   string `mapstructure:"broker_url" yaml:"broker_url"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	QoS         int    `mapstructure:"qos" yaml:"qos"`
}

type InfluxDBConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	URL           string `mapstructure:"url" yaml:"url"`
	Token         string `mapstructure:"token" yaml:"-"`
	Org           string `mapstructure:"org" yaml:"org"`
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	BatchSize     int    `mapstructure:"batch_size" yaml:"batch_size"`
	FlushInterval int    `mapstructure:"flush_interval" yaml:"flush_interval"`
}

const (
	JournalDriverPostgres = "postgres"
	JournalDriverSQLite   = "sqlite"
)

// legacyMachineEnv maps machine keys to the bare environment names the line
// was historically configured with.
var legacyMachineEnv = map[string][]string{
	"machine.conveyor_length":                     {"CONVEYOR_LENGTH"},
	"machine.oven_length":                         {"OVEN_LENGTH"},
	"machine.oven_position":                       {"OVEN_POSITION"},
	"machine.oven_warmup_degrees_per_period":      {"OVEN_WARMUP_DEGREES_PER_PERIOD"},
	"machine.oven_cool_down_degrees_per_period":   {"OVEN_COOL_DOWN_DEGREES_PER_PERIOD"},
	"machine.desired_minimum_oven_temperature":    {"DESIRED_MINIMUM_OVEN_TEMPERATURE", "DESIRED_MININUM_OVEN_TEMPERATURE"},
	"machine.desired_maximum_oven_temperature":    {"DESIRED_MAXIMUM_OVEN_TEMPERATURE"},
	"machine.motor_pulse_duration_seconds":        {"MOTOR_PULSE_DURATION_SECONDS"},
	"machine.oven_speed_period_length_in_seconds": {"OVEN_SPEED_PERIOD_LENGTH_IN_SECONDS"},
}

// Load reads the YAML file at path (optional) and overlays environment
// variables on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BISCUIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range legacyMachineEnv {
		prefixed := "BISCUIT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 3001)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")

	// Line defaults
	v.SetDefault("machine.conveyor_length", 6)
	v.SetDefault("machine.oven_length", 2)
	v.SetDefault("machine.oven_position", 4)
	v.SetDefault("machine.oven_warmup_degrees_per_period", 30)
	v.SetDefault("machine.oven_cool_down_degrees_per_period", 10)
	v.SetDefault("machine.desired_minimum_oven_temperature", 220)
	v.SetDefault("machine.desired_maximum_oven_temperature", 240)
	v.SetDefault("machine.motor_pulse_duration_seconds", 1)
	v.SetDefault("machine.oven_speed_period_length_in_seconds", 1)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "BISCUIT_JWT_SECRET")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("auth.issuer", "biscuit-maker")

	v.SetDefault("journal.driver", "")
	v.SetDefault("journal.sqlite_path", "data/journal.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "biscuit")
	v.SetDefault("database.user", "biscuit")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "biscuit-maker")
	v.SetDefault("mqtt.topic_prefix", "biscuit")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.org", "biscuit")
	v.SetDefault("influxdb.bucket", "line")
	v.SetDefault("influxdb.batch_size", 100)
	v.SetDefault("influxdb.flush_interval", 10)
}

// Dump renders the effective configuration as YAML. Secrets are omitted.
func (c *Config) Dump() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// OvenPeriod is the duration of one heating/cooling step.
func (m *MachineConfig) OvenPeriod() time.Duration {
	return secondsToDuration(m.OvenSpeedPeriodSeconds)
}

// MotorPulse is the duration of one motor cycle.
func (m *MachineConfig) MotorPulse() time.Duration {
	return secondsToDuration(m.MotorPulseDurationSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// GetJWTSecret loads the signing secret from the configured environment variable.
func (a *AuthConfig) GetJWTSecret() (string, error) {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "BISCUIT_JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if len(secret) < minSecretLength {
		return "", fmt.Errorf("%w: %s must hold at least %d characters", ErrWeakSecret, envVar, minSecretLength)
	}
	return secret, nil
}

const minSecretLength = 32

var ErrWeakSecret = errors.New("jwt secret missing or too short")
