package graphql

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// GraphQLResponse represents a GraphQL HTTP response
type GraphQLResponse struct {
	Data   any            `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

func toResponse(result *graphql.Result) GraphQLResponse {
	resp := GraphQLResponse{Data: result.Data}
	for _, err := range result.Errors {
		resp.Errors = append(resp.Errors, GraphQLError{Message: err.Message, Path: err.Path})
	}
	return resp
}

// Handler serves queries and mutations over POST and subscriptions as a
// server-sent event stream.
type Handler struct {
	schema    graphql.Schema
	limits    Limits
	logger    logging.Logger
	heartbeat time.Duration
}

// NewHandler creates a GraphQL HTTP handler
func NewHandler(schema graphql.Schema, limits Limits, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{
		schema:    schema,
		limits:    limits,
		logger:    logger.With(logging.Component("graphql")),
		heartbeat: 15 * time.Second,
	}
}

// ServeHTTP executes a query or mutation sent as a JSON body
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := Execute(r.Context(), h.schema, req, h.limits)
	if result.HasErrors() {
		h.logger.Debug("graphql operation returned errors",
			logging.String("operation", req.OperationName),
			logging.Count(len(result.Errors)),
			logging.Latency(time.Since(start)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toResponse(result)); err != nil {
		h.logger.Warn("failed to write graphql response", logging.Error(err))
	}
}

// Stream runs a subscription given in the query string parameters query,
// variables and operationName, writing each result as an SSE data event.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	req := Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
	if req.Query == "" {
		http.Error(w, "query parameter is required", http.StatusBadRequest)
		return
	}
	if v := q.Get("variables"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
			http.Error(w, "Invalid variables", http.StatusBadRequest)
			return
		}
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("graphql stream cannot flush", logging.Error(err))
		return
	}

	results := Subscribe(r.Context(), h.schema, req, h.limits)
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Debug("graphql subscription started", logging.String("operation", req.OperationName))
	defer h.logger.Debug("graphql subscription ended", logging.String("operation", req.OperationName))

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case result, ok := <-results:
			if !ok {
				return
			}
			data, err := json.Marshal(toResponse(result))
			if err != nil {
				h.logger.Warn("failed to encode subscription result", logging.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
