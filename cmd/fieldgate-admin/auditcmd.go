package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dd0wney/fieldgate/pkg/audit"
)

func handleAuditCommand(args []string) int {
	if len(args) < 1 {
		printAuditUsage()
		return exitValidation
	}

	switch args[0] {
	case "verify":
		return auditVerify(args[1:])
	case "export":
		return auditExport(args[1:])
	default:
		printAuditUsage()
		return exitValidation
	}
}

func printAuditUsage() {
	fmt.Print(`Audit log commands

Usage:
  fieldgate-admin audit verify [--audit-dir DIR]
  fieldgate-admin audit export --out FILE [--format jsonl|csv] [--session ID] [--incident ID] [--approval ID] [--audit-dir DIR]
`)
}

func auditVerify(args []string) int {
	fs := flag.NewFlagSet("audit verify", flag.ContinueOnError)
	auditDir := fs.String("audit-dir", "./data/audit", "Audit log directory")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	log, err := audit.New(&audit.Config{LogDir: *auditDir})
	if err != nil {
		return fail(err)
	}
	defer log.Close()

	result := log.Verify()
	if !result.Valid {
		fmt.Fprintf(os.Stderr, "CHAIN BROKEN at sequence %d: %s (%d records checked)\n",
			result.FirstBadSeq, result.Detail, result.RecordsChecked)
		return exitValidation
	}

	fmt.Printf("Chain valid: %d records verified\n", result.RecordsChecked)
	return exitOK
}

func auditExport(args []string) int {
	fs := flag.NewFlagSet("audit export", flag.ContinueOnError)
	out := fs.String("out", "", "Output file")
	format := fs.String("format", "jsonl", "Export format: jsonl or csv")
	sessionID := fs.String("session", "", "Filter by session id")
	incidentID := fs.String("incident", "", "Filter by incident id")
	approvalID := fs.String("approval", "", "Filter by approval id")
	auditDir := fs.String("audit-dir", "./data/audit", "Audit log directory")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --out is required")
		return exitValidation
	}

	exportFormat := audit.FormatJSONL
	switch *format {
	case "jsonl":
	case "csv":
		exportFormat = audit.FormatCSV
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		return exitValidation
	}

	log, err := audit.New(&audit.Config{LogDir: *auditDir})
	if err != nil {
		return fail(err)
	}
	defer log.Close()

	opts := &audit.ExportOptions{
		Format: exportFormat,
		Filter: &audit.Filter{
			SessionID:  *sessionID,
			IncidentID: *incidentID,
			ApprovalID: *approvalID,
		},
	}
	if err := log.ExportToFile(*out, opts); err != nil {
		return fail(err)
	}

	fmt.Printf("Exported to %s\n", *out)
	return exitOK
}
