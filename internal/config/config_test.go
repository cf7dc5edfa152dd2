package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validMachine() MachineConfig {
	return MachineConfig{
		ConveyorLength:                6,
		OvenLength:                    2,
		OvenPosition:                  4,
		OvenWarmupDegreesPerPeriod:    30,
		OvenCoolDownDegreesPerPeriod:  10,
		DesiredMinimumOvenTemperature: 220,
		DesiredMaximumOvenTemperature: 240,
		MotorPulseDurationSeconds:     1,
		OvenSpeedPeriodSeconds:        1,
	}
}

// TestLoadDefaults checks that the line runs with no file and no environment.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, validMachine(), cfg.Machine)
	require.Equal(t, 3001, cfg.Server.HTTPPort)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	require.False(t, cfg.MQTT.Enabled)
	require.Empty(t, cfg.Journal.Driver)
}

// TestLoadFileAndEnv verifies file values and both environment spellings.
func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := []byte(`
server:
  http_port: 8081
machine:
  conveyor_length: 10
  oven_position: 5
journal:
  driver: sqlite
  sqlite_path: /tmp/journal.db
`)
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	t.Setenv("OVEN_LENGTH", "3")
	t.Setenv("BISCUIT_MACHINE_MOTOR_PULSE_DURATION_SECONDS", "0.5")
	t.Setenv("DESIRED_MININUM_OVEN_TEMPERATURE", "200")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8081, cfg.Server.HTTPPort)
	require.Equal(t, 10, cfg.Machine.ConveyorLength)
	require.Equal(t, 5, cfg.Machine.OvenPosition)
	require.Equal(t, 3, cfg.Machine.OvenLength)
	require.InDelta(t, 200, cfg.Machine.DesiredMinimumOvenTemperature, 0.001)
	require.Equal(t, 500*time.Millisecond, cfg.Machine.MotorPulse())
	require.Equal(t, JournalDriverSQLite, cfg.Journal.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidMachine(t *testing.T) {
	t.Setenv("CONVEYOR_LENGTH", "4")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidMachine)
}

// TestMachineValidate walks every line constraint.
func TestMachineValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(m *MachineConfig){
		"short conveyor":      func(m *MachineConfig) { m.ConveyorLength = 4 },
		"short oven":          func(m *MachineConfig) { m.OvenLength = 1 },
		"oven too early":      func(m *MachineConfig) { m.OvenPosition = 2 },
		"oven off the belt":   func(m *MachineConfig) { m.OvenPosition = 5 },
		"no warmup":           func(m *MachineConfig) { m.OvenWarmupDegreesPerPeriod = 0 },
		"no cool down":        func(m *MachineConfig) { m.OvenCoolDownDegreesPerPeriod = 0.5 },
		"cold minimum":        func(m *MachineConfig) { m.DesiredMinimumOvenTemperature = 100 },
		"hot maximum":         func(m *MachineConfig) { m.DesiredMaximumOvenTemperature = 261 },
		"minimum over max":    func(m *MachineConfig) { m.DesiredMinimumOvenTemperature = 250 },
		"fast motor":          func(m *MachineConfig) { m.MotorPulseDurationSeconds = 0.05 },
		"negative oven speed": func(m *MachineConfig) { m.OvenSpeedPeriodSeconds = -1 },
	}

	for name, mutate := range cases {
		m := validMachine()
		mutate(&m)
		require.ErrorIs(t, m.Validate(), ErrInvalidMachine, name)
	}

	m := validMachine()
	require.NoError(t, m.Validate())

	// The oven may end exactly on the last slot.
	m.OvenPosition = 4
	m.OvenLength = 2
	m.ConveyorLength = 6
	require.NoError(t, m.Validate())

	m.OvenSpeedPeriodSeconds = 0
	require.NoError(t, m.Validate())
}

func TestValidateOptionalSections(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Server:  ServerConfig{HTTPPort: 3001, GRPCPort: 0},
		Machine: validMachine(),
	}
	require.NoError(t, cfg.Validate())

	cfg.Journal.Driver = "mongo"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidJournal)

	cfg.Journal.Driver = JournalDriverSQLite
	require.ErrorIs(t, cfg.Validate(), ErrInvalidJournal)

	cfg.Journal.SQLitePath = "journal.db"
	require.NoError(t, cfg.Validate())

	cfg.MQTT = MQTTConfig{Enabled: true, BrokerURL: "tcp://broker:1883", TopicPrefix: "biscuit", QoS: 3}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidMQTT)

	cfg.MQTT.QoS = 1
	require.NoError(t, cfg.Validate())

	cfg.InfluxDB = InfluxDBConfig{Enabled: true, URL: "http://influx:8086"}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidInfluxDB)

	cfg.Server.HTTPPort = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidServer)
}

func TestDumpOmitsSecrets(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Machine:  validMachine(),
		Database: DatabaseConfig{User: "biscuit", Password: "hunter2"},
		InfluxDB: InfluxDBConfig{Token: "influx-token"},
	}

	data, err := cfg.Dump()
	require.NoError(t, err)
	require.NotContains(t, string(data), "hunter2")
	require.NotContains(t, string(data), "influx-token")

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Equal(t, cfg.Machine, decoded.Machine)
}

func TestGetJWTSecret(t *testing.T) {
	auth := AuthConfig{JWTSecretEnv: "TEST_BISCUIT_SECRET"}

	t.Setenv("TEST_BISCUIT_SECRET", "short")
	_, err := auth.GetJWTSecret()
	require.ErrorIs(t, err, ErrWeakSecret)

	t.Setenv("TEST_BISCUIT_SECRET", "0123456789abcdef0123456789abcdef")
	secret, err := auth.GetJWTSecret()
	require.NoError(t, err)
	require.Len(t, secret, 32)
}
