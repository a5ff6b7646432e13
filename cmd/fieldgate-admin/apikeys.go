package main

import (
	"flag"
	"fmt"

	"github.com/dd0wney/fieldgate/pkg/registry"
)

func handleAPIKeyCommand(args []string) int {
	if len(args) < 1 {
		printAPIKeyUsage()
		return exitValidation
	}

	switch args[0] {
	case "create":
		return apikeyCreate(args[1:])
	case "revoke":
		return apikeyRevoke(args[1:])
	default:
		printAPIKeyUsage()
		return exitValidation
	}
}

func printAPIKeyUsage() {
	fmt.Print(`Administrative API key commands

Usage:
  fieldgate-admin apikey create --label LABEL [--production] [--data-dir DIR]
  fieldgate-admin apikey revoke KEY_ID [--data-dir DIR]
`)
}

func apikeyCreate(args []string) int {
	fs := flag.NewFlagSet("apikey create", flag.ContinueOnError)
	label := fs.String("label", "", "Key label")
	production := fs.Bool("production", false, "Mint a production key")
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	store, err := registry.NewAdminKeyStore(*dataDir)
	if err != nil {
		return fail(err)
	}

	key, plaintext, err := store.CreateKey(*label, *production)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Key created: %s\n", key.ID)
	fmt.Printf("API key (shown once, store securely): %s\n", plaintext)
	return exitOK
}

func apikeyRevoke(args []string) int {
	fs := flag.NewFlagSet("apikey revoke", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	keyID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(fs.Output(), "Error: KEY_ID is required")
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	store, err := registry.NewAdminKeyStore(*dataDir)
	if err != nil {
		return fail(err)
	}
	if err := store.RevokeKey(keyID); err != nil {
		return fail(err)
	}

	fmt.Printf("Key revoked: %s\n", keyID)
	return exitOK
}
