package api

import (
	"net/http"
	"strconv"

	"github.com/dd0wney/fieldgate/pkg/audit"
)

// handleAuditExport streams the audit log in JSONL or CSV form
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format := audit.FormatJSONL
	if q.Get("format") == "csv" {
		format = audit.FormatCSV
	}

	filter := &audit.Filter{
		Actor:      q.Get("actor"),
		Kind:       audit.Kind(q.Get("kind")),
		Severity:   audit.Severity(q.Get("severity")),
		SessionID:  q.Get("session_id"),
		IncidentID: q.Get("incident_id"),
		ApprovalID: q.Get("approval_id"),
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	if format == audit.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/x-ndjson")
	}

	if err := s.auditLog.Export(w, &audit.ExportOptions{
		Format: format,
		Filter: filter,
		Limit:  limit,
	}); err != nil {
		s.respondError(w, http.StatusInternalServerError, s.sanitizeError(err, "audit export"))
	}
}

// handleAuditVerify recomputes the hash chain and reports the first break,
// if any
func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	result := s.auditLog.Verify()
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusConflict
	}
	s.respondJSON(w, status, result)
}
