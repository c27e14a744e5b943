package api

import (
	"net/http"
	"strings"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() { s.listNodes(w, r) }).
		Post(func() { s.createNode(w, r) }).
		NotAllowed()
}

// listNodes answers GET /nodes?kind=Valve&status=Closed
func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	kind := network.NodeKind(r.URL.Query().Get("kind"))
	status := network.NodeStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.respondError(w, http.StatusBadRequest, "unknown node status "+string(status))
		return
	}

	var nodes []network.Node
	if kind != "" {
		nodes = s.engine.Graph().NodesOfKind(kind)
	} else {
		nodes = s.engine.Graph().Nodes()
	}
	out := make([]network.Node, 0, len(nodes))
	for _, n := range nodes {
		if status == "" || n.Status == status {
			out = append(out, n)
		}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	var node network.Node
	if s.NewRequestDecoder(w, r).DecodeJSON(&node).RespondError() {
		return
	}
	id, err := s.engine.RegisterNode(node)
	if err != nil {
		s.respondFault(w, r, "RegisterNode", err)
		return
	}
	created, err := s.engine.Graph().Node(id)
	if err != nil {
		s.respondFault(w, r, "RegisterNode", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			node, err := s.engine.Graph().Node(network.NodeID(id))
			if err != nil {
				s.respondFault(w, r, "GetNode", err)
				return
			}
			s.respondJSON(w, http.StatusOK, node)
		}).
		NotAllowed()
}

func (s *Server) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Put(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			var req StatusRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			if err := s.engine.SetNodeStatus(network.NodeID(id), network.NodeStatus(req.Status)); err != nil {
				s.respondFault(w, r, "SetNodeStatus", err)
				return
			}
			node, err := s.engine.Graph().Node(network.NodeID(id))
			if err != nil {
				s.respondFault(w, r, "SetNodeStatus", err)
				return
			}
			s.respondJSON(w, http.StatusOK, node)
		}).
		NotAllowed()
}

// handleReachable answers GET /nodes/{id}/reachable?status=Active,UnderRepair.
// The response also carries the nodes and zones that closing the node would isolate.
func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			allowed, err := parseEdgeStatuses(r.URL.Query().Get("status"))
			if err != nil {
				s.respondFault(w, r, "ReachableFrom", err)
				return
			}
			reachable, err := s.engine.Graph().ReachableFrom(network.NodeID(id), allowed...)
			if err != nil {
				s.respondFault(w, r, "ReachableFrom", err)
				return
			}
			zones, isolated, err := s.engine.AffectedDMAs(network.NodeID(id))
			if err != nil {
				s.respondFault(w, r, "AffectedDMAs", err)
				return
			}
			resp := ReachableResponse{
				NodeID:    network.NodeID(id),
				Statuses:  make([]string, 0, len(allowed)),
				Reachable: reachable,
				Isolated:  isolated,
				DMAs:      zones,
			}
			for _, st := range allowed {
				resp.Statuses = append(resp.Statuses, string(st))
			}
			s.respondJSON(w, http.StatusOK, resp)
		}).
		NotAllowed()
}

func parseEdgeStatuses(raw string) ([]network.EdgeStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var out []network.EdgeStatus
	for _, part := range strings.Split(raw, ",") {
		st := network.EdgeStatus(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, fault.New("ReachableFrom").Cause(fault.ErrInvalidStatus).Context("%q", st).Err()
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			status := network.EdgeStatus(r.URL.Query().Get("status"))
			edges := s.engine.Graph().Edges()
			out := make([]network.Segment, 0, len(edges))
			for _, e := range edges {
				if status == "" || e.Status == status {
					out = append(out, e)
				}
			}
			s.respondJSON(w, http.StatusOK, out)
		}).
		Post(func() { s.createEdge(w, r) }).
		NotAllowed()
}

func (s *Server) createEdge(w http.ResponseWriter, r *http.Request) {
	var req EdgeRequest
	if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
		return
	}
	attrs := network.SegmentAttrs{
		Material:   network.Material(req.Material),
		DiameterMM: req.DiameterMM,
		LengthKM:   req.LengthKM,
		Status:     network.EdgeStatus(req.Status),
	}
	id, err := s.engine.RegisterEdge(network.EdgeID(req.ID), network.NodeID(req.A), network.NodeID(req.B), attrs)
	if err != nil {
		s.respondFault(w, r, "RegisterEdge", err)
		return
	}
	seg, err := s.engine.Graph().Edge(id)
	if err != nil {
		s.respondFault(w, r, "RegisterEdge", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, seg)
}

func (s *Server) handleEdgeStatus(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Put(func() {
			id, ok := s.pathID(w, r)
			if !ok {
				return
			}
			var req StatusRequest
			if s.NewRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			if err := s.engine.SetEdgeStatus(network.EdgeID(id), network.EdgeStatus(req.Status)); err != nil {
				s.respondFault(w, r, "SetEdgeStatus", err)
				return
			}
			seg, err := s.engine.Graph().Edge(network.EdgeID(id))
			if err != nil {
				s.respondFault(w, r, "SetEdgeStatus", err)
				return
			}
			s.respondJSON(w, http.StatusOK, seg)
		}).
		NotAllowed()
}
