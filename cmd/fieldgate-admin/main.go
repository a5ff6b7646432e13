// fieldgate-admin is the administrative CLI: operator and zone provisioning,
// admin key management, session and approval status queries, and audit log
// verification and export.
//
// Exit codes: 0 success, 1 validation error, 2 not found, 3 permission
// denied.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dd0wney/fieldgate/pkg/registry"
)

const (
	exitOK         = 0
	exitValidation = 1
	exitNotFound   = 2
	exitPermission = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitValidation)
	}

	var code int
	switch os.Args[1] {
	case "operator":
		code = handleOperatorCommand(os.Args[2:])
	case "zone":
		code = handleZoneCommand(os.Args[2:])
	case "apikey":
		code = handleAPIKeyCommand(os.Args[2:])
	case "session":
		code = handleSessionCommand(os.Args[2:])
	case "approval":
		code = handleApprovalCommand(os.Args[2:])
	case "audit":
		code = handleAuditCommand(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
		code = exitOK
	case "version", "--version", "-v":
		fmt.Println("fieldgate-admin v1.0.0")
		code = exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		code = exitValidation
	}
	os.Exit(code)
}

func printUsage() {
	usage := `fieldgate-admin - Administrative tools for the field diagnostic gate

Usage:
  fieldgate-admin <command> <subcommand> [options]

Available Commands:
  operator    Provision, certify, and deactivate operators
  zone        Provision zones and assign operators
  apikey      Mint and revoke administrative API keys
  session     Query session history from the audit log
  approval    Query approval chain history from the audit log
  audit       Verify and export the audit log
  help        Show this help message
  version     Show version information

Global Flags:
  --data-dir DIR    Registry data directory (default: ./data/registry)
  --audit-dir DIR   Audit log directory (default: ./data/audit)

Use "fieldgate-admin <command>" with no subcommand for command help.
`
	fmt.Print(usage)
}

// exitCodeFor maps an error to the CLI exit code contract
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, registry.ErrOperatorNotFound),
		errors.Is(err, registry.ErrZoneNotFound),
		errors.Is(err, registry.ErrKeyNotFound):
		return exitNotFound
	case errors.Is(err, os.ErrPermission):
		return exitPermission
	default:
		return exitValidation
	}
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitCodeFor(err)
}
