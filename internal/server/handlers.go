package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
)

// invalidOperation is the audited operation name of requests that never named one
const invalidOperation = "(invalid)"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "calcmate",
		"version": s.version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	registry := s.dispatcher.Registry()
	switch format := r.URL.Query().Get("format"); format {
	case "", "discovery":
		writeJSON(w, http.StatusOK, map[string]any{"tools": registry.Discovery()})
	case "functions":
		writeJSON(w, http.StatusOK, map[string]any{"tools": registry.GetSchemas()})
	default:
		writeResult(w, dispatch.Failure(dispatch.InvalidRequest, "unknown format %q (use discovery or functions)", format))
	}
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	s.handleInvocation(w, r, mux.Vars(r)["name"])
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.handleInvocation(w, r, "")
}

func (s *Server) handleInvocation(w http.ResponseWriter, r *http.Request, pathName string) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				dispatch.Failure(dispatch.InvalidRequest, "request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeResult(w, dispatch.Failure(dispatch.InvalidRequest, "failed to read request body"))
		return
	}

	req, err := decodeInvocation(body, pathName)
	if err != nil {
		res := dispatch.Failure(dispatch.InvalidRequest, "%s", err.Error())
		writeResult(w, res)
		if req.OperationName == "" {
			req.OperationName = invalidOperation
		}
		s.record(r, req, res, time.Since(start))
		return
	}

	res := s.dispatcher.Invoke(req)
	writeResult(w, res)
	s.record(r, req, res, time.Since(start))
}

// record saves an audit entry; failures are logged and never affect the response
func (s *Server) record(r *http.Request, req dispatch.Request, res dispatch.Result, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	entry := audit.NewEntry(audit.TransportHTTP, req, res, elapsed)
	entry.RequestID = RequestIDFromContext(r.Context())
	entry.Endpoint = r.URL.Path
	entry.ClientIP = s.clientIP(r)
	entry.UserAgent = r.UserAgent()
	entry.HTTPStatus = HTTPStatus(res)
	if err := s.store.Record(entry); err != nil {
		logger.Warn("Failed to record audit entry for %s: %v", req.OperationName, err)
	}
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, dispatch.Failure(dispatch.InvalidRequest, "audit log is disabled"))
		return
	}

	limit := s.auditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeResult(w, dispatch.Failure(dispatch.InvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := s.store.Recent(limit)
	if err != nil {
		logger.Error("Failed to read audit log: %v", err)
		writeResult(w, dispatch.Failure(dispatch.InternalError, "failed to read audit log"))
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, dispatch.Failure(dispatch.InvalidRequest, "audit log is disabled"))
		return
	}

	summaries, err := s.store.Summary()
	if err != nil {
		logger.Error("Failed to summarize audit log: %v", err)
		writeResult(w, dispatch.Failure(dispatch.InternalError, "failed to summarize audit log"))
		return
	}
	if summaries == nil {
		summaries = []*audit.OperationSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": summaries})
}

func writeResult(w http.ResponseWriter, res dispatch.Result) {
	writeJSON(w, HTTPStatus(res), res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}
