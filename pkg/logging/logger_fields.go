package logging

import (
	"time"

	"go.uber.org/zap"
)

// Common field constructors
func String(key, value string) Field                 { return zap.String(key, value) }
func Int(key string, value int) Field                { return zap.Int(key, value) }
func Int64(key string, value int64) Field            { return zap.Int64(key, value) }
func Uint64(key string, value uint64) Field          { return zap.Uint64(key, value) }
func Float64(key string, value float64) Field        { return zap.Float64(key, value) }
func Bool(key string, value bool) Field              { return zap.Bool(key, value) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Time(key string, value time.Time) Field         { return zap.Time(key, value) }
func Any(key string, value any) Field                { return zap.Any(key, value) }

func Error(err error) Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}

// Component field helpers for common component names
func Component(name string) Field {
	return String("component", name)
}

func NodeID(id string) Field {
	return String("node_id", id)
}

func EdgeID(id string) Field {
	return String("edge_id", id)
}

func DMA(id string) Field {
	return String("dma", id)
}

func Sensor(id string) Field {
	return String("sensor_id", id)
}

func AlertID(id string) Field {
	return String("alert_id", id)
}

func CaseID(id string) Field {
	return String("case_id", id)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
