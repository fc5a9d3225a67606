package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sushiva/omni-channel-ai-servicing/internal/evidence"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/pipeline"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{
			"pipeline":    "ok",
			"audit_store": "ok",
		}
		if s.processor == nil {
			components["pipeline"] = "disabled"
		}
		if s.audit == nil {
			components["audit_store"] = "disabled"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProcess answers with 200 for every pipeline outcome; the response
// status field says whether the request was served, blocked, escalated or
// failed. Only malformed requests get a 4xx.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "pipeline not configured")
		return
	}
	var req pipeline.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.CustomerID == "" {
		req.CustomerID = requestctx.CustomerID(r.Context())
	}
	if err := validateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp := s.processor.Process(r.Context(), req)
	log.Debug().
		Str("correlation_id", requestctx.CorrelationID(r.Context())).
		Str("request_id", resp.RequestID).
		Str("status", string(resp.Status)).
		Msg("process_request_served")
	writeJSON(w, http.StatusOK, resp)
}

func validateRequest(req *pipeline.Request) error {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if strings.TrimSpace(req.RawText) == "" {
		return errors.New("raw_text is required")
	}
	if req.Channel == "" {
		req.Channel = pipeline.ChannelChat
	}
	if !req.Channel.Valid() {
		return fmt.Errorf("unknown channel %q", req.Channel)
	}
	return nil
}

type intentInfo struct {
	Intent      intent.Intent `json:"intent"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Workflow    workflow.Name `json:"workflow"`
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	var routes map[intent.Intent]workflow.Name
	if s.routes != nil {
		routes = s.routes.Routes()
	}
	out := make([]intentInfo, 0, len(intent.All()))
	for _, in := range intent.All() {
		wf, ok := routes[in]
		if !ok {
			wf = workflow.FallbackWorkflow
		}
		out = append(out, intentInfo{Intent: in, Name: in.Name(), Description: in.Description(), Workflow: wf})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Intent < out[j].Intent })
	writeJSON(w, http.StatusOK, map[string]interface{}{"intents": out})
}

func parseAuditFilter(r *http.Request) (evidence.Filter, error) {
	q := r.URL.Query()
	f := evidence.Filter{
		CustomerID: q.Get("customer_id"),
		Intent:     q.Get("intent"),
		Status:     q.Get("status"),
		Limit:      defaultAuditLimit,
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("limit must be a positive integer")
		}
		f.Limit = n
	}
	if f.Limit > maxAuditLimit {
		f.Limit = maxAuditLimit
	}
	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fmt.Errorf("from must be RFC 3339: %w", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fmt.Errorf("to must be RFC 3339: %w", err)
		}
	}
	return f, nil
}

// handleAuditList serves the compact index by default, full records with
// detail=true and a CSV export with format=csv.
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "audit store not configured")
		return
	}
	f, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch {
	case r.URL.Query().Get("format") == "csv":
		records, err := s.audit.List(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		rows := make([]evidence.ExportRecord, 0, len(records))
		for i := range records {
			rows = append(rows, evidence.ToExportRecord(&records[i]))
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit.csv")
		w.WriteHeader(http.StatusOK)
		if err := evidence.WriteCSV(w, rows); err != nil {
			log.Error().Err(err).Msg("audit_csv_export_failed")
		}
	case r.URL.Query().Get("detail") == "true":
		records, err := s.audit.List(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		if records == nil {
			records = []evidence.Evidence{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
	default:
		entries, err := s.audit.ListIndex(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		if entries == nil {
			entries = []evidence.Index{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"entries": entries,
			"hint":    "use GET /v1/audit/<id> for full detail",
		})
	}
}

func (s *Server) handleAuditGet(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "audit store not configured")
		return
	}
	id := chi.URLParam(r, "id")
	ev, err := s.audit.Get(r.Context(), id)
	if err != nil {
		writeAuditError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "audit store not configured")
		return
	}
	id := chi.URLParam(r, "id")
	valid, err := s.audit.Verify(r.Context(), id)
	if err != nil {
		writeAuditError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}

func writeAuditError(w http.ResponseWriter, err error) {
	if errors.Is(err, evidence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}
