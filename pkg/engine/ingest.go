package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/parallel"
)

// SubmitReading validates a sensor reading and queues it for evaluation.
// Malformed readings are rejected synchronously; a full queue rejects with
// QueueSaturated and never blocks.
func (e *Engine) SubmitReading(sensorID string, value float64, unit string, ts time.Time) error {
	const op = "SubmitReading"
	if err := e.accepting(op); err != nil {
		return err
	}

	n, err := e.graph.Node(network.NodeID(sensorID))
	if err != nil {
		return e.reject("reading", "unknown_sensor",
			fault.New(op).Entity("sensor", sensorID).Cause(fault.ErrUnknownSensor).Err())
	}
	attrs, ok := n.Sensor()
	if !ok {
		return e.reject("reading", "not_a_sensor",
			fault.New(op).Node(sensorID).Cause(fault.ErrUnknownSensor).Context("node is a %s", n.Kind()).Err())
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return e.reject("reading", "non_finite",
			fault.New(op).Entity("sensor", sensorID).Cause(fault.ErrInvalidValue).Context("value %v", value).Err())
	}
	if unit == "" {
		unit = attrs.Unit
	}
	if !strings.EqualFold(unit, attrs.Unit) {
		return e.reject("reading", "unit_mismatch",
			fault.New(op).Entity("sensor", sensorID).Cause(fault.ErrInvalidValue).
				Context("unit %q, sensor reports %q", unit, attrs.Unit).Err())
	}
	if ts.IsZero() {
		ts = e.now()
	}

	r := alerts.Reading{SensorID: sensorID, Value: value, Unit: attrs.Unit, Timestamp: ts}
	queued := e.now()
	return e.enqueue(op, "reading", func(context.Context) {
		e.readings.Append(r)
		e.alerts.Evaluate(r)
		if e.metrics != nil {
			e.metrics.IngestLatency.Observe(e.now().Sub(queued).Seconds())
			e.metrics.ReadingsRetained.Set(float64(e.readings.Len()))
		}
	})
}

// SubmitVolume queues supplied and billed volumes (m³) for a zone
func (e *Engine) SubmitVolume(id dma.ID, supplied, billed float64, ts time.Time) error {
	const op = "SubmitVolume"
	if err := e.accepting(op); err != nil {
		return err
	}
	if !e.zones.Exists(id) {
		return e.reject("volume", "unknown_dma", fault.New(op).DMA(string(id)).Cause(fault.ErrUnknownDMA).Err())
	}
	if supplied < 0 || billed < 0 || math.IsNaN(supplied+billed) || math.IsInf(supplied+billed, 0) {
		return e.reject("volume", "invalid_volume", fault.New(op).DMA(string(id)).Cause(fault.ErrInvalidValue).
			Context("supplied %v billed %v", supplied, billed).Err())
	}
	if ts.IsZero() {
		ts = e.now()
	}

	return e.enqueue(op, "volume", func(context.Context) {
		if err := e.nrw.IngestVolume(id, supplied, billed, ts); err != nil {
			e.logger.Warn("volume dropped", logging.DMA(string(id)), logging.Error(err))
		}
	})
}

func (e *Engine) accepting(op string) error {
	if e.closed.Load() {
		return fault.New(op).Cause(fault.ErrClosed).Err()
	}
	if !e.ready.Load() {
		return fault.New(op).Cause(fault.ErrNotReady).Context("journal replay pending").Err()
	}
	return nil
}

func (e *Engine) enqueue(op, kind string, task parallel.Task) error {
	err := e.ingest.TrySubmit(task)
	switch {
	case err == nil:
		if e.metrics != nil {
			e.metrics.RecordIngest(kind, "")
			e.metrics.SetQueue(e.ingest.Len(), e.ingest.Cap())
		}
		return nil
	case errors.Is(err, parallel.ErrQueueFull):
		depth, capacity := e.QueueDepth()
		if e.metrics != nil {
			e.metrics.RecordIngest(kind, "saturated")
			e.metrics.SetQueue(depth, capacity)
		}
		e.logger.Warn("ingestion queue saturated", logging.String("kind", kind), logging.Count(depth))
		return fault.New(op).Cause(fault.ErrQueueSaturated).Context("depth %d of %d", depth, capacity).Err()
	default:
		return fault.New(op).Cause(fault.ErrClosed).Err()
	}
}

func (e *Engine) reject(kind, reason string, err error) error {
	if e.metrics != nil {
		e.metrics.RecordIngest(kind, reason)
	}
	return err
}
