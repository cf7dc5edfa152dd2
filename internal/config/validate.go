package config

import (
	"errors"
	"fmt"
)

// Line limits. The oven cannot start before the third slot and has to fit on
// the belt.
const (
	MinConveyorLength         = 5
	MinOvenLength             = 2
	MinOvenPosition           = 3
	MinDegreesPerPeriod       = 1
	MinDesiredOvenTemperature = 120
	MaxDesiredOvenTemperature = 260
	MinMotorPulseSeconds      = 0.1
	MinOvenSpeedPeriodSeconds = 0
	maxMQTTQoS                = 2
)

var (
	ErrInvalidMachine  = errors.New("invalid machine configuration")
	ErrInvalidJournal  = errors.New("invalid journal configuration")
	ErrInvalidMQTT     = errors.New("invalid mqtt configuration")
	ErrInvalidInfluxDB = errors.New("invalid influxdb configuration")
	ErrInvalidServer   = errors.New("invalid server configuration")
)

// Validate checks every section and returns the first violation.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.GRPCPort < 0 {
		return fmt.Errorf("%w: http_port must be positive and grpc_port non-negative", ErrInvalidServer)
	}

	if err := c.Machine.Validate(); err != nil {
		return err
	}

	switch c.Journal.Driver {
	case "", JournalDriverPostgres:
	case JournalDriverSQLite:
		if c.Journal.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite driver", ErrInvalidJournal)
		}
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidJournal, c.Journal.Driver)
	}

	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" || c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("%w: broker_url and topic_prefix are required", ErrInvalidMQTT)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > maxMQTTQoS {
			return fmt.Errorf("%w: qos must be 0, 1 or 2", ErrInvalidMQTT)
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		return fmt.Errorf("%w: url, org and bucket are required", ErrInvalidInfluxDB)
	}

	return nil
}

// Validate enforces the physical constraints of the line.
func (m *MachineConfig) Validate() error {
	switch {
	case m.ConveyorLength < MinConveyorLength:
		return fmt.Errorf("%w: conveyor_length must be >= %d", ErrInvalidMachine, MinConveyorLength)
	case m.OvenLength < MinOvenLength:
		return fmt.Errorf("%w: oven_length must be >= %d", ErrInvalidMachine, MinOvenLength)
	case m.OvenPosition < MinOvenPosition:
		return fmt.Errorf("%w: oven_position must be >= %d", ErrInvalidMachine, MinOvenPosition)
	case m.OvenPosition+m.OvenLength > m.ConveyorLength:
		return fmt.Errorf("%w: oven_position + oven_length must be <= conveyor_length", ErrInvalidMachine)
	case m.OvenWarmupDegreesPerPeriod < MinDegreesPerPeriod:
		return fmt.Errorf("%w: oven_warmup_degrees_per_period must be >= %d", ErrInvalidMachine, MinDegreesPerPeriod)
	case m.OvenCoolDownDegreesPerPeriod < MinDegreesPerPeriod:
		return fmt.Errorf("%w: oven_cool_down_degrees_per_period must be >= %d", ErrInvalidMachine, MinDegreesPerPeriod)
	case m.DesiredMinimumOvenTemperature < MinDesiredOvenTemperature:
		return fmt.Errorf("%w: desired_minimum_oven_temperature must be >= %d", ErrInvalidMachine, MinDesiredOvenTemperature)
	case m.DesiredMaximumOvenTemperature > MaxDesiredOvenTemperature:
		return fmt.Errorf("%w: desired_maximum_oven_temperature must be <= %d", ErrInvalidMachine, MaxDesiredOvenTemperature)
	case m.DesiredMinimumOvenTemperature > m.DesiredMaximumOvenTemperature:
		return fmt.Errorf("%w: desired minimum temperature exceeds the maximum", ErrInvalidMachine)
	case m.MotorPulseDurationSeconds < MinMotorPulseSeconds:
		return fmt.Errorf("%w: motor_pulse_duration_seconds must be >= %.1f", ErrInvalidMachine, MinMotorPulseSeconds)
	case m.OvenSpeedPeriodSeconds < MinOvenSpeedPeriodSeconds:
		return fmt.Errorf("%w: oven_speed_period_length_in_seconds must be >= %d", ErrInvalidMachine, MinOvenSpeedPeriodSeconds)
	}
	return nil
}
