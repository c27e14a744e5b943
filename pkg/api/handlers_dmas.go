package api

import (
	"net/http"

	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/nrw"
)

// handleDMAs lists zone summaries or creates a zone
func (s *Server) handleDMAs(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			s.respondJSON(w, http.StatusOK, s.engine.ZoneSummaries())
		}).
		Post(func() { s.createDMA(w, r) }).
		NotAllowed()
}

func (s *Server) createDMA(w http.ResponseWriter, r *http.Request) {
	var req DMARequest
	if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
		return
	}
	nodes := make([]network.NodeID, len(req.Nodes))
	for i, n := range req.Nodes {
		nodes[i] = network.NodeID(n)
	}
	id, err := s.engine.CreateDMA(dma.ID(req.ID), nodes, req.TargetNRW)
	if err != nil {
		s.respondFault(w, r, "CreateDMA", err)
		return
	}
	if req.Connections > 0 {
		if err := s.engine.SetConnections(id, req.Connections); err != nil {
			s.respondFault(w, r, "SetConnections", err)
			return
		}
	}
	s.respondZone(w, r, http.StatusCreated, id)
}

// handleDMA returns a zone drill-down or updates its target and connections
func (s *Server) handleDMA(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.NewMethodRouter(w, r).
		Get(func() { s.respondZone(w, r, http.StatusOK, dma.ID(id)) }).
		Put(func() { s.updateDMA(w, r, dma.ID(id)) }).
		NotAllowed()
}

func (s *Server) updateDMA(w http.ResponseWriter, r *http.Request, id dma.ID) {
	var req DMAUpdateRequest
	if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
		return
	}
	if req.TargetNRW != nil {
		if err := s.engine.SetTarget(id, *req.TargetNRW); err != nil {
			s.respondFault(w, r, "SetTarget", err)
			return
		}
	}
	if req.Connections != nil {
		if err := s.engine.SetConnections(id, *req.Connections); err != nil {
			s.respondFault(w, r, "SetConnections", err)
			return
		}
	}
	s.respondZone(w, r, http.StatusOK, id)
}

// handleMembers applies removals before additions. It stops at the first
// failure; earlier changes stay applied.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Post(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			var req MembersRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			if _, err := s.engine.Zones().Get(dma.ID(id)); err != nil {
				s.respondFault(w, r, "AssignDMA", err)
				return
			}
			for _, n := range req.Remove {
				if err := s.engine.UnassignDMA(network.NodeID(n)); err != nil {
					s.respondFault(w, r, "UnassignDMA", err)
					return
				}
			}
			for _, n := range req.Add {
				if err := s.engine.AssignDMA(network.NodeID(n), dma.ID(id)); err != nil {
					s.respondFault(w, r, "AssignDMA", err)
					return
				}
			}
			s.respondZone(w, r, http.StatusOK, dma.ID(id))
		}).
		NotAllowed()
}

func (s *Server) handleZoneNRW(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			summary, err := s.engine.ZoneSummary(dma.ID(id))
			if err != nil {
				s.respondFault(w, r, "ZoneNRW", err)
				return
			}
			periods, err := s.engine.NRW().Periods(dma.ID(id))
			if err != nil {
				s.respondFault(w, r, "ZoneNRW", err)
				return
			}
			if periods == nil {
				periods = []nrw.Period{}
			}
			s.respondJSON(w, http.StatusOK, ZoneNRWResponse{
				ID:                summary.ID,
				TargetNRW:         summary.TargetNRW,
				NRW:               summary.NRW,
				RollingNRW7d:      summary.RollingNRW7d,
				RebaselinePending: summary.RebaselinePending,
				Periods:           periods,
			})
		}).
		NotAllowed()
}

// handleZoneReadingSummaries returns the day summaries of readings that
// aged out of the retention window for sensors in the zone
func (s *Server) handleZoneReadingSummaries(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			sums, err := s.engine.ReadingSummaries(dma.ID(id))
			if err != nil {
				s.respondFault(w, r, "ReadingSummaries", err)
				return
			}
			s.respondJSON(w, http.StatusOK, sums)
		}).
		NotAllowed()
}

func (s *Server) respondZone(w http.ResponseWriter, r *http.Request, status int, id dma.ID) {
	summary, err := s.engine.ZoneSummary(id)
	if err != nil {
		s.respondFault(w, r, "ZoneSummary", err)
		return
	}
	s.respondJSON(w, status, summary)
}
