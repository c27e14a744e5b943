package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/validation"
)

// requestDecoder decodes and validates request bodies.
// It provides a fluent interface for common request handling patterns.
type requestDecoder struct {
	r          *http.Request
	w          http.ResponseWriter
	server     *Server
	err        error
	statusCode int
}

// NewRequestDecoder creates a new request decoder for the given request.
func (s *Server) NewRequestDecoder(w http.ResponseWriter, r *http.Request) *requestDecoder {
	return &requestDecoder{
		r:      r,
		w:      w,
		server: s,
	}
}

// DecodeJSON decodes the request body into the provided struct.
// Unknown fields are rejected so that typos in field names surface.
func (rd *requestDecoder) DecodeJSON(v any) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	dec := json.NewDecoder(rd.r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rd.err = fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
			rd.statusCode = http.StatusRequestEntityTooLarge
			return rd
		}
		rd.err = fmt.Errorf("invalid request body: %w", err)
		rd.statusCode = http.StatusBadRequest
	}
	return rd
}

// Validate runs the struct's validate tags.
func (rd *requestDecoder) Validate(v any) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	if err := validation.Struct(v); err != nil {
		rd.err = err
		rd.statusCode = http.StatusBadRequest
	}
	return rd
}

// HasError returns true if any error occurred during decoding/validation.
func (rd *requestDecoder) HasError() bool {
	return rd.err != nil
}

// Error returns the error if any occurred.
func (rd *requestDecoder) Error() error {
	return rd.err
}

// RespondError sends the error response and returns true if there was an error.
func (rd *requestDecoder) RespondError() bool {
	if rd.err == nil {
		return false
	}
	rd.server.respondError(rd.w, rd.statusCode, rd.err.Error())
	return true
}

// pathID returns the {id} wildcard, answering 400 when it is not a valid asset id.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := validation.ValidateAssetID(id); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// methodRouter routes requests based on HTTP method.
type methodRouter struct {
	w       http.ResponseWriter
	r       *http.Request
	server  *Server
	allowed []string
	handled bool
}

// NewMethodRouter creates a new method router.
func (s *Server) NewMethodRouter(w http.ResponseWriter, r *http.Request) *methodRouter {
	return &methodRouter{
		w:      w,
		r:      r,
		server: s,
	}
}

func (mr *methodRouter) on(method string, handler func()) *methodRouter {
	mr.allowed = append(mr.allowed, method)
	if !mr.handled && mr.r.Method == method {
		handler()
		mr.handled = true
	}
	return mr
}

// Get handles GET requests with the provided handler.
func (mr *methodRouter) Get(handler func()) *methodRouter {
	return mr.on(http.MethodGet, handler)
}

// Post handles POST requests with the provided handler.
func (mr *methodRouter) Post(handler func()) *methodRouter {
	return mr.on(http.MethodPost, handler)
}

// Put handles PUT requests with the provided handler.
func (mr *methodRouter) Put(handler func()) *methodRouter {
	return mr.on(http.MethodPut, handler)
}

// NotAllowed sends a 405 response if no method matched.
func (mr *methodRouter) NotAllowed() {
	if mr.handled {
		return
	}
	for _, m := range mr.allowed {
		mr.w.Header().Add("Allow", m)
	}
	mr.server.logger.Debug("method not allowed",
		logging.String("method", mr.r.Method),
		logging.Path(mr.r.URL.Path))
	mr.server.respondError(mr.w, http.StatusMethodNotAllowed, "Method not allowed")
}
