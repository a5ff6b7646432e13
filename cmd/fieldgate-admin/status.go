package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/dd0wney/fieldgate/pkg/audit"
)

func handleSessionCommand(args []string) int {
	if len(args) < 1 || args[0] != "status" {
		fmt.Print(`Usage:
  fieldgate-admin session status SESSION_ID [--audit-dir DIR]
`)
		return exitValidation
	}
	return timelineCommand(args[1:], func(f *audit.Filter, id string) { f.SessionID = id }, "session")
}

func handleApprovalCommand(args []string) int {
	if len(args) < 1 || args[0] != "status" {
		fmt.Print(`Usage:
  fieldgate-admin approval status APPROVAL_ID [--audit-dir DIR]
`)
		return exitValidation
	}
	return timelineCommand(args[1:], func(f *audit.Filter, id string) { f.ApprovalID = id }, "approval")
}

// timelineCommand prints the audit history of one entity. Status queries go
// through the audit log rather than the live server: the log is the record
// of truth, and the CLI works even when the server is down.
func timelineCommand(args []string, bind func(*audit.Filter, string), entity string) int {
	fs := flag.NewFlagSet(entity+" status", flag.ContinueOnError)
	auditDir := fs.String("audit-dir", "./data/audit", "Audit log directory")
	id, ok := popArg(&args)
	if !ok {
		fmt.Fprintf(fs.Output(), "Error: %s id is required\n", entity)
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	log, err := audit.New(&audit.Config{LogDir: *auditDir})
	if err != nil {
		return fail(err)
	}
	defer log.Close()

	filter := &audit.Filter{}
	bind(filter, id)
	records := log.Query(filter)
	if len(records) == 0 {
		fmt.Fprintf(fs.Output(), "Error: no audit records for %s %s\n", entity, id)
		return exitNotFound
	}

	for _, r := range records {
		fmt.Printf("%s  seq=%-6d %-22s sev=%s actor=%s\n",
			r.Timestamp.Format(time.RFC3339), r.Sequence, r.Kind, r.Severity, r.Actor)
	}
	fmt.Printf("%d records\n", len(records))
	return exitOK
}
