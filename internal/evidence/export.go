package evidence

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ExportRecord is a flattened evidence record for CSV and JSON exports.
type ExportRecord struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	CustomerID    string    `json:"customer_id"`
	Channel       string    `json:"channel"`
	Intent        string    `json:"intent,omitempty"`
	Workflow      string    `json:"workflow,omitempty"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"error_code,omitempty"`
	PolicyAction  string    `json:"policy_action,omitempty"`
	PolicyReasons []string  `json:"policy_reasons,omitempty"`
	Sources       []string  `json:"sources,omitempty"`
	Violations    int       `json:"violations"`
	DurationMS    int64     `json:"duration_ms"`
	InputHash     string    `json:"input_hash,omitempty"`
	OutputHash    string    `json:"output_hash,omitempty"`
}

// ToExportRecord builds an ExportRecord from a full Evidence.
func ToExportRecord(e *Evidence) ExportRecord {
	rec := ExportRecord{
		ID:            e.ID,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
		CustomerID:    e.CustomerID,
		Channel:       e.Channel,
		Intent:        e.Intent,
		Workflow:      e.Workflow,
		Status:        e.Status,
		ErrorCode:     e.ErrorCode,
		Violations:    e.Guardrails.InputViolations + e.Guardrails.OutputViolations,
		DurationMS:    e.Execution.DurationMS,
		InputHash:     e.AuditTrail.InputHash,
		OutputHash:    e.AuditTrail.OutputHash,
	}
	if e.PolicyDecision != nil {
		rec.PolicyAction = e.PolicyDecision.Action
		rec.PolicyReasons = append([]string(nil), e.PolicyDecision.Reasons...)
	}
	if len(e.Retrieval.Sources) > 0 {
		rec.Sources = append([]string(nil), e.Retrieval.Sources...)
	}
	return rec
}

var csvHeader = []string{
	"id", "timestamp", "correlation_id", "customer_id", "channel", "intent", "workflow",
	"status", "error_code", "policy_action", "policy_reasons", "sources", "violations",
	"duration_ms", "input_hash", "output_hash",
}

// WriteCSV writes records with a header row. List-valued columns are
// joined with ";".
func WriteCSV(w io.Writer, records []ExportRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Timestamp.UTC().Format(time.RFC3339),
			r.CorrelationID,
			r.CustomerID,
			r.Channel,
			r.Intent,
			r.Workflow,
			r.Status,
			r.ErrorCode,
			r.PolicyAction,
			strings.Join(r.PolicyReasons, ";"),
			strings.Join(r.Sources, ";"),
			strconv.Itoa(r.Violations),
			strconv.FormatInt(r.DurationMS, 10),
			r.InputHash,
			r.OutputHash,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
