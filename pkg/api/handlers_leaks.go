package api

import (
	"net/http"
	"strconv"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
)

func (s *Server) handleLeaks(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() { s.listLeaks(w, r) }).
		Post(func() { s.reportLeak(w, r) }).
		NotAllowed()
}

// listLeaks answers GET /leaks?status=Open&dma=Zone-A&open=true
func (s *Server) listLeaks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := leaks.Filter{DMA: q.Get("dma")}
	if v := q.Get("status"); v != "" {
		st, err := leaks.ParseStatus(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	if v := q.Get("open"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "open must be a boolean")
			return
		}
		f.Open = b
	}
	cases := s.engine.Leaks().List(f)
	if cases == nil {
		cases = []leaks.Case{}
	}
	s.respondJSON(w, http.StatusOK, cases)
}

func (s *Server) reportLeak(w http.ResponseWriter, r *http.Request) {
	var req LeakRequest
	if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
		return
	}
	sev := alerts.SeverityMedium
	if req.Severity != "" {
		var err error
		if sev, err = alerts.ParseSeverity(req.Severity); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	id, err := s.engine.ReportLeak(leaks.Location{NodeID: req.NodeID, SegmentID: req.SegmentID}, req.Description, sev)
	if err != nil {
		s.respondFault(w, r, "ReportLeak", err)
		return
	}
	s.respondCase(w, r, http.StatusCreated, id)
}

func (s *Server) handleLeak(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			s.respondCase(w, r, http.StatusOK, id)
		}).
		NotAllowed()
}

func (s *Server) handleLeakAdvance(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Post(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			var req AdvanceRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			next, err := leaks.ParseStatus(req.To)
			if err != nil {
				s.respondFault(w, r, "AdvanceCase", invalidStatus(err))
				return
			}
			var expected leaks.Status
			if req.Expected != "" {
				if expected, err = leaks.ParseStatus(req.Expected); err != nil {
					s.respondFault(w, r, "AdvanceCase", invalidStatus(err))
					return
				}
			}
			c, err := s.engine.AdvanceCase(id, expected, next, req.Actor)
			if err != nil {
				s.respondFault(w, r, "AdvanceCase", err)
				return
			}
			s.respondJSON(w, http.StatusOK, c)
		}).
		NotAllowed()
}

func (s *Server) handleLeakResolve(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Post(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			var req ResolveRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			c, err := s.engine.ResolveCase(id, req.RepairedAt, req.RootCause, req.PartsUsed, req.Actor)
			if err != nil {
				s.respondFault(w, r, "ResolveCase", err)
				return
			}
			s.respondJSON(w, http.StatusOK, c)
		}).
		NotAllowed()
}

func (s *Server) handleLeakAck(w http.ResponseWriter, r *http.Request) {
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
			c, err := s.engine.AcknowledgeCase(id, req.Actor)
			if err != nil {
				s.respondFault(w, r, "AcknowledgeCase", err)
				return
			}
			s.respondJSON(w, http.StatusOK, c)
		}).
		NotAllowed()
}

func (s *Server) handleLeakReopen(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Post(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			var req ReopenRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			newID, err := s.engine.ReopenCase(id, req.Description, req.Actor)
			if err != nil {
				s.respondFault(w, r, "ReopenCase", err)
				return
			}
			s.respondCase(w, r, http.StatusCreated, newID)
		}).
		NotAllowed()
}

func (s *Server) respondCase(w http.ResponseWriter, r *http.Request, status int, id string) {
	c, err := s.engine.Leaks().Get(id)
	if err != nil {
		s.respondFault(w, r, "GetCase", err)
		return
	}
	s.respondJSON(w, status, c)
}

func invalidStatus(err error) error {
	return fault.New("AdvanceCase").Cause(fault.ErrInvalidStatus).Context("%v", err).Err()
}
