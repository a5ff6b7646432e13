package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dd0wney/fieldgate/pkg/registry"
)

func handleZoneCommand(args []string) int {
	if len(args) < 1 {
		printZoneUsage()
		return exitValidation
	}

	switch args[0] {
	case "create":
		return zoneCreate(args[1:])
	case "assign":
		return zoneAssign(args[1:])
	case "show":
		return zoneShow(args[1:])
	default:
		printZoneUsage()
		return exitValidation
	}
}

func printZoneUsage() {
	fmt.Print(`Zone provisioning commands

Usage:
  fieldgate-admin zone create --name NAME --lat LAT --lng LNG --radius METERS [--contact ADDR] [--data-dir DIR]
  fieldgate-admin zone assign OPERATOR_ID ZONE_ID [--data-dir DIR]
  fieldgate-admin zone show ZONE_ID [--data-dir DIR]
`)
}

func zoneCreate(args []string) int {
	fs := flag.NewFlagSet("zone create", flag.ContinueOnError)
	name := fs.String("name", "", "Zone name")
	lat := fs.Float64("lat", 0, "Center latitude")
	lng := fs.Float64("lng", 0, "Center longitude")
	radius := fs.Float64("radius", 0, "Radius in meters")
	contact := fs.String("contact", "", "Emergency contact address")
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
	zone, err := reg.CreateZone(*name, *lat, *lng, *radius, *contact)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Zone created: %s\n", zone.ID)
	return exitOK
}

func zoneAssign(args []string) int {
	fs := flag.NewFlagSet("zone assign", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	operatorID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: OPERATOR_ID is required")
		return exitValidation
	}
	zoneID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: ZONE_ID is required")
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	reg, err := registry.Load(*dataDir)
	if err != nil {
		return fail(err)
	}
	if err := reg.AssignOperatorToZone(operatorID, zoneID); err != nil {
		return fail(err)
	}

	fmt.Printf("Operator %s assigned to zone %s\n", operatorID, zoneID)
	return exitOK
}

func zoneShow(args []string) int {
	fs := flag.NewFlagSet("zone show", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "./data/registry", "Registry data directory")
	zoneID, ok := popArg(&args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: ZONE_ID is required")
		return exitValidation
	}
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}

	reg, err := registry.Load(*dataDir)
	if err != nil {
		return fail(err)
	}
	zone, err := reg.GetZone(zoneID)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("ID:        %s\n", zone.ID)
	fmt.Printf("Name:      %s\n", zone.Name)
	fmt.Printf("Center:    %.6f, %.6f\n", zone.CenterLat, zone.CenterLng)
	fmt.Printf("Radius:    %.0fm\n", zone.RadiusMeters)
	fmt.Printf("Operators: %d\n", len(zone.OperatorIDs))
	return exitOK
}
