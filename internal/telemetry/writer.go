// Package telemetry mirrors machine events into InfluxDB as time series.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

var (
	ErrDisabled         = errors.New("influxdb telemetry disabled")
	ErrConnectionFailed = errors.New("influxdb connection failed")
)

const (
	defaultBatchSize      = 100
	defaultFlushInterval  = 10
	millisecondsPerSecond = 1000
)

// pointWriter is the part of api.WriteAPI the writer uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Writer turns machine events into InfluxDB points. Writes are batched and
// non-blocking.
type Writer struct {
	client influxdb2.Client
	api    pointWriter
	logger *zap.Logger
}

func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond))

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("InfluxDB write failed", zap.Error(err))
		}
	}()

	logger.Info("InfluxDB telemetry connected",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket))

	return &Writer{client: client, api: writeAPI, logger: logger}, nil
}

// Run writes points for events from feed until it closes or ctx is done.
func (w *Writer) Run(ctx context.Context, feed <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-feed:
			if !ok {
				return
			}
			w.Write(e)
		}
	}
}

// Write queues the point for e. It reports false for events with no time
// series.
func (w *Writer) Write(e events.Event) bool {
	point, ok := PointFor(e)
	if !ok {
		return false
	}
	w.api.WritePoint(point)
	return true
}

// Close flushes pending points and closes the client.
func (w *Writer) Close() {
	w.api.Flush()
	if w.client != nil {
		w.client.Close()
	}
}

// PointFor maps an event onto its measurement.
func PointFor(e events.Event) (*write.Point, bool) {
	var (
		measurement string
		tags        map[string]string
		fields      map[string]interface{}
	)

	switch e.Name {
	case events.OvenTemperatureChange:
		v, ok := number(e.Data)
		if !ok {
			return nil, false
		}
		measurement, fields = "oven", map[string]interface{}{"temperature": v}
	case events.OvenHeated:
		measurement, fields = "oven", boolField("heated", e.Data)
	case events.CookiesMoved:
		p, ok := e.Data.(events.CookiePositions)
		if !ok {
			return nil, false
		}
		measurement, fields = "conveyor", map[string]interface{}{
			"first":        p.FirstCookiePosition,
			"last":         p.LastCookiePosition,
			"first_burned": p.FirstBurnedCookiePosition,
			"last_burned":  p.LastBurnedCookiePosition,
		}
	case events.CookieCooked:
		v, ok := number(e.Data)
		if !ok {
			return nil, false
		}
		measurement, fields = "conveyor", map[string]interface{}{"cooked": int64(v)}
	case events.MachineOn:
		measurement, fields = "machine", boolField("machine_on", e.Data)
	case events.MachinePaused:
		measurement, fields = "machine", boolField("paused", e.Data)
	case events.MotorOn:
		measurement, fields = "machine", boolField("motor_on", e.Data)
	case events.Error, events.Warning:
		measurement = "alerts"
		tags = map[string]string{"level": "warning"}
		if e.Name == events.Error {
			tags["level"] = "error"
		}
		fields = map[string]interface{}{"message": fmt.Sprint(e.Data)}
	default:
		return nil, false
	}

	if fields == nil {
		return nil, false
	}
	return write.NewPoint(measurement, tags, fields, e.Timestamp), true
}

func boolField(key string, data any) map[string]interface{} {
	v, ok := data.(bool)
	if !ok {
		return nil
	}
	return map[string]interface{}{key: v}
}

func number(data any) (float64, bool) {
	switch v := data.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
