package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/giantswarm/version-matrix/internal/session"
)

// Handler serves one application instance over the capability protocol. It
// is the entry point of release container images.
func Handler(inst session.Instance) http.Handler {
	caps := inst.Capabilities()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, protocolResponse{Version: inst.Version()})
	})

	mux.HandleFunc("GET /actions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, protocolResponse{Actions: caps.ActionNames()})
	})

	mux.HandleFunc("POST /actions/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		fn, ok := caps.Actions[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, protocolResponse{Error: "unknown action " + name})
			return
		}

		args := session.Args{}
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, protocolResponse{Error: "invalid arguments: " + err.Error()})
			return
		}

		out, err := recovered(func() (any, error) { return fn(r.Context(), args) })
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, protocolResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, protocolResponse{Result: out})
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		if caps.State == nil {
			writeJSON(w, http.StatusNotFound, protocolResponse{Error: "application exposes no state"})
			return
		}
		path := r.URL.Query().Get("path")
		v, err := recovered(func() (any, error) { return caps.State(r.Context(), path) })
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, protocolResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, protocolResponse{Value: v})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body protocolResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// recovered turns a panic in application code into an error response.
func recovered(fn func() (any, error)) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
