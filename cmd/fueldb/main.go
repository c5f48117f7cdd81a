package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "fueldb",
		Usage: "Aggregate UK fuel price feeds and find cheap nearby stations",
		Commands: []*cli.Command{
			updateCommand(),
			listNearbyCommand(),
			historyCommand(),
			checkStatusCommand(),
			migrateCommand(),
			cleanupCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

func dbFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db",
		Usage:    "Database file",
		Required: false,
		Value:    "fuel_prices.db",
	}
}
