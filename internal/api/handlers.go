package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 64 << 10

// ExecRequest is the body of POST /targets/{name}/exec. Exactly one of
// Command and Preset must be set.
type ExecRequest struct {
	Command string `json:"command"`
	Preset  string `json:"preset"`
	Wake    bool   `json:"wake"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Categories)
}

func (s *Server) lookupTarget(w http.ResponseWriter, r *http.Request) (models.ConnectionTarget, bool) {
	name := mux.Vars(r)["name"]
	// config keys are lowercased on load
	target, ok := s.targets[strings.ToLower(name)]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown target: "+name)
		return models.ConnectionTarget{}, false
	}
	return target, true
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	target, ok := s.lookupTarget(w, r)
	if !ok {
		return
	}

	var req ExecRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	command, err := s.resolveCommand(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report := s.runner.Run(r.Context(), models.Job{
		Action:  models.ActionExec,
		Target:  target,
		Command: command,
		Wake:    req.Wake,
	})
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) resolveCommand(req ExecRequest) (string, error) {
	switch {
	case req.Command != "" && req.Preset != "":
		return "", errors.New("set either command or preset, not both")
	case req.Preset != "":
		preset, err := s.catalog.Lookup(req.Preset)
		if err != nil {
			return "", err
		}
		return preset.Command, nil
	case req.Command != "":
		return req.Command, nil
	default:
		return "", errors.New("command or preset is required")
	}
}

func (s *Server) handleAction(action models.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := s.lookupTarget(w, r)
		if !ok {
			return
		}

		wake := false
		if v := r.URL.Query().Get("wake"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid wake parameter: "+v)
				return
			}
			wake = parsed
		}

		report := s.runner.Run(r.Context(), models.Job{
			Action: action,
			Target: target,
			Wake:   wake,
		})
		writeJSON(w, http.StatusOK, report)
	}
}
