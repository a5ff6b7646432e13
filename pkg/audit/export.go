package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ExportFormat identifies an export output format
type ExportFormat string

const (
	FormatJSONL ExportFormat = "jsonl"
	FormatCSV   ExportFormat = "csv"
)

// ExportOptions controls an export run
type ExportOptions struct {
	Format ExportFormat
	Filter *Filter
	Limit  int
}

// Export writes matching records to the writer in append order. JSONL is the
// canonical interchange format for compliance tooling; CSV is offered for
// spreadsheet review.
func (l *Log) Export(w io.Writer, opts *ExportOptions) error {
	if opts == nil {
		opts = &ExportOptions{Format: FormatJSONL}
	}

	records := l.Query(opts.Filter)
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}

	switch opts.Format {
	case FormatJSONL, "":
		return exportJSONL(w, records)
	case FormatCSV:
		return exportCSV(w, records)
	default:
		return fmt.Errorf("unsupported export format: %s", opts.Format)
	}
}

// ExportToFile writes matching records to a file
func (l *Log) ExportToFile(filename string, opts *ExportOptions) (retErr error) {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()

	return l.Export(file, opts)
}

func exportJSONL(w io.Writer, records []*Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", r.Sequence, err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, records []*Record) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"sequence", "timestamp", "actor", "kind", "severity", "session_id", "incident_id", "approval_id", "payload_hash", "prev_hash", "record_hash"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			strconv.FormatUint(r.Sequence, 10),
			r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			r.Actor,
			string(r.Kind),
			string(r.Severity),
			r.SessionID,
			r.IncidentID,
			r.ApprovalID,
			r.PayloadHash,
			r.PrevHash,
			r.RecordHash,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
