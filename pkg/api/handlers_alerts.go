package api

import (
	"net/http"
	"strconv"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
)

// handleAlerts answers GET /alerts with optional filters sensor_id, state,
// min_severity, dma and include_closed.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			q := r.URL.Query()
			f := alerts.Filter{
				SensorID: q.Get("sensor_id"),
				State:    alerts.State(q.Get("state")),
			}
			if v := q.Get("min_severity"); v != "" {
				sev, err := alerts.ParseSeverity(v)
				if err != nil {
					s.respondError(w, http.StatusBadRequest, err.Error())
					return
				}
				f.MinSeverity = sev
			}
			if v := q.Get("include_closed"); v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					s.respondError(w, http.StatusBadRequest, "include_closed must be a boolean")
					return
				}
				f.IncludeClosed = b
			}

			var list []alerts.Alert
			if zone := q.Get("dma"); zone != "" {
				zoneAlerts, err := s.engine.AlertsForZone(dma.ID(zone))
				if err != nil {
					s.respondFault(w, r, "AlertsForZone", err)
					return
				}
				for _, a := range zoneAlerts {
					if f.Match(a) {
						list = append(list, a)
					}
				}
			} else {
				list = s.engine.Alerts().List(f)
			}
			if list == nil {
				list = []alerts.Alert{}
			}
			s.respondJSON(w, http.StatusOK, AlertsResponse{Alerts: list, Count: len(list)})
		}).
		NotAllowed()
}

func (s *Server) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Post(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			var req ActorRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			alert, err := s.engine.AcknowledgeAlert(id, req.Actor)
			if err != nil {
				s.respondFault(w, r, "AcknowledgeAlert", err)
				return
			}
			s.respondJSON(w, http.StatusOK, alert)
		}).
		NotAllowed()
}
