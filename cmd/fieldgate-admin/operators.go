package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dd0wney/fieldgate/pkg/registry"
	"github.com/dd0wney/fieldgate/pkg/totp"
)

func handleOperatorCommand(args []string) int {
	if len(args) < 1 {
		printOperatorUsage()
		return exitValidation
	}

	switch args[0] {
	case "create":
		return operatorCreate(args[1:])
	case "deactivate":
		return operatorDeactivate(args[1:])
	case "certify":
		return operatorCertify(args[1:])
	case "contact":
		return operatorContact(args[1:])
	case "show":
		return operatorShow(args[1:])
	default:
		printOperatorUsage()
		return exitValidation
	}
}

func printOperatorUsage() {
	fmt.Print(`Operator provisioning commands

Usage:
  fieldgate-admin operator create --name NAME --role ROLE [--zones z1,z2] [--data-dir DIR]
  fieldgate-admin operator deactivate OPERATOR_ID [--data-dir DIR]
  fieldgate-admin operator certify OPERATOR_ID TAG [--data-dir DIR]
  fieldgate-admin operator contact OPERATOR_ID CHANNEL ADDRESS [--data-dir DIR]
  fieldgate-admin operator show OPERATOR_ID [--data-dir DIR]

Roles: operator, supervisor, manager, director
Channels: email, sms, chat
`)
}

func operatorCreate(args []string) int {
	fs := flag.NewFlagSet("operator create", flag.ContinueOnError)
	name := fs.String("name", "", "Display name")
	role := fs.String("role", "operator", "Role")
	zones := fs.String("zones", "", "Comma-separated zone ids")
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		return exitValidation
	}

	reg, err := registry.Load(*dataDir)
	if err != nil {
		return fail(err)
	}

	secret, err := totp.GenerateSecret("fieldgate", *name)
	if err != nil {
		return fail(err)
	}

	var zoneIDs []string
	if *zones != "" {
		zoneIDs = strings.Split(*zones, ",")
	}

	op, err := reg.CreateOperator(*name, *role, secret, zoneIDs)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Operator created: %s\n", op.ID)
	fmt.Printf("TOTP secret (deliver to operator, shown once): %s\n", secret)
	return exitOK
}

func operatorDeactivate(args []string) int {
	fs := flag.NewFlagSet("operator deactivate", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	operatorID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: OPERATOR_ID is required")
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	reg, err := registry.Load(*dataDir)
	if err != nil {
		return fail(err)
	}
	if err := reg.DeactivateOperator(operatorID); err != nil {
		return fail(err)
	}

	fmt.Printf("Operator deactivated: %s\n", operatorID)
	return exitOK
}

func operatorCertify(args []string) int {
	fs := flag.NewFlagSet("operator certify", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	operatorID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: OPERATOR_ID is required")
		return exitValidation
	}
	tag, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: TAG is required")
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	reg, err := registry.Load(*dataDir)
	if err != nil {
		return fail(err)
	}
	if err := reg.AddCertification(operatorID, tag); err != nil {
		return fail(err)
	}

	fmt.Printf("Certification %q added to %s\n", tag, operatorID)
	return exitOK
}

func operatorContact(args []string) int {
	fs := flag.NewFlagSet("operator contact", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	operatorID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: OPERATOR_ID is required")
		return exitValidation
	}
	channel, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: CHANNEL is required")
		return exitValidation
	}
	address, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: ADDRESS is required")
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	reg, err := registry.Load(*dataDir)
	if err != nil {
		return fail(err)
	}

	op, err := reg.GetOperator(operatorID)
	if err != nil {
		return fail(err)
	}
	contacts := append(op.Contacts, registry.Contact{
		Channel: registry.ContactChannel(channel),
		Address: address,
	})
	if err := reg.SetContacts(operatorID, contacts); err != nil {
		return fail(err)
	}

	fmt.Printf("Contact added to %s: %s %s\n", operatorID, channel, address)
	return exitOK
}

func operatorShow(args []string) int {
	fs := flag.NewFlagSet("operator show", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	operatorID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: OPERATOR_ID is required")
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	reg, err := registry.Load(*dataDir)
	if err != nil {
		return fail(err)
	}
	op, err := reg.GetOperator(operatorID)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("ID:             %s\n", op.ID)
	fmt.Printf("Name:           %s\n", op.DisplayName)
	fmt.Printf("Role:           %s\n", op.Role)
	fmt.Printf("Active:         %t\n", op.Active)
	fmt.Printf("Zones:          %s\n", strings.Join(op.ZoneIDs, ", "))
	fmt.Printf("Certifications: %s\n", strings.Join(op.Certifications, ", "))
	return exitOK
}

// popArg takes the first non-flag argument off the slice
func popArg(args *[]string) (string, bool) {
	if len(*args) == 0 || strings.HasPrefix((*args)[0], "-") {
		return "", false
	}
	arg := (*args)[0]
	*args = (*args)[1:]
	return arg, true
}
