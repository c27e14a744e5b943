package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/validation"
)

// handleThresholds installs a threshold rule or lists the installed rules
func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			var rules []alerts.Rule
			if sensor := r.URL.Query().Get("sensor_id"); sensor != "" {
				rules = s.engine.Alerts().Rules(sensor)
			} else {
				rules = s.engine.Alerts().AllRules()
			}
			if rules == nil {
				rules = []alerts.Rule{}
			}
			s.respondJSON(w, http.StatusOK, rules)
		}).
		Post(func() {
			var rule alerts.Rule
			if s.NewRequestDecoder(w, r).DecodeJSON(&rule).RespondError() {
				return
			}
			installed, err := s.engine.SetThreshold(rule)
			if err != nil {
				s.respondFault(w, r, "SetThreshold", err)
				return
			}
			s.respondJSON(w, http.StatusCreated, installed)
		}).
		NotAllowed()
}

// handleReadings queues a batch of sensor readings. Malformed items are
// reported per index; a saturated queue stops the batch with 503.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Post(func() {
			var req ReadingsRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			if err := validation.ValidateBatchSize(len(req.Readings)); err != nil {
				s.respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.ingest(w, r, "SubmitReading", len(req.Readings), func(i int) error {
				rd := req.Readings[i]
				return s.engine.SubmitReading(rd.SensorID, rd.Value, rd.Unit, rd.Timestamp)
			})
		}).
		NotAllowed()
}

// handleVolumes queues a batch of supplied/billed volume records
func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Post(func() {
			var req VolumesRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			if err := validation.ValidateBatchSize(len(req.Volumes)); err != nil {
				s.respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.ingest(w, r, "SubmitVolume", len(req.Volumes), func(i int) error {
				v := req.Volumes[i]
				return s.engine.SubmitVolume(dma.ID(v.DMA), v.Supplied, v.Billed, v.Timestamp)
			})
		}).
		NotAllowed()
}

// ingest submits n items. Validation failures are collected; a retryable
// failure ends the batch and reports how many items were queued before it.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, op string, n int, submit func(i int) error) {
	resp := IngestResponse{}
	for i := range n {
		err := submit(i)
		switch {
		case err == nil:
			resp.Accepted++
		case fault.IsValidation(err):
			resp.Rejected = append(resp.Rejected, IngestRejection{Index: i, Error: err.Error()})
		default:
			if errors.Is(err, fault.ErrQueueSaturated) || errors.Is(err, fault.ErrNotReady) {
				w.Header().Set("X-Accepted-Count", strconv.Itoa(resp.Accepted))
			}
			s.respondFault(w, r, op, err)
			return
		}
	}
	if resp.Accepted == 0 {
		s.respondJSON(w, http.StatusBadRequest, resp)
		return
	}
	s.respondJSON(w, http.StatusAccepted, resp)
}
