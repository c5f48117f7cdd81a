package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/fullbrim/fueldb/internal/fueldb"
	"github.com/fullbrim/fueldb/internal/normalize"
	"github.com/fullbrim/fueldb/pkg/api"
	"github.com/urfave/cli/v2"
)

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Fetch all retailer feeds and store today's snapshot",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Skip the per-retailer summary",
			},
		},
		Action: updateAction,
	}
}

func updateAction(c *cli.Context) error {
	ctx := context.Background()
	storage, err := fueldb.NewStorage(ctx, c.String("db"), slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	defer storage.Close()

	snap, err := storage.UpdateDB(ctx)
	if err != nil {
		return err
	}

	if !c.Bool("quiet") {
		printSummary(snap)
	}
	return nil
}

func printSummary(snap *api.Snapshot) {
	registry := normalize.New(nil)

	var succeeded, failed []api.RetailerResult
	for _, result := range snap.Results {
		if result.OK() {
			succeeded = append(succeeded, result)
		} else {
			failed = append(failed, result)
		}
	}

	fmt.Printf("Fuel price snapshot - %s\n", snap.Timestamp)
	fmt.Printf("Successful: %d/%d\n", len(succeeded), len(snap.Results))
	fmt.Printf("Errors: %d/%d\n\n", len(failed), len(snap.Results))

	sort.Slice(succeeded, func(i, j int) bool { return succeeded[i].Retailer < succeeded[j].Retailer })
	for _, result := range succeeded {
		stations := registry.Stations(result)
		fmt.Printf("%s:\n", result.Retailer)
		fmt.Printf("  Stations: %d\n", len(stations))
		fmt.Printf("  URL: %s\n", result.URL)
	}

	if len(failed) > 0 {
		fmt.Println("\nErrors:")
		sort.Slice(failed, func(i, j int) bool { return failed[i].Retailer < failed[j].Retailer })
		for _, result := range failed {
			fmt.Printf("%s:\n", result.Retailer)
			fmt.Printf("  Error: %s\n", result.Error)
			fmt.Printf("  URL: %s\n", result.URL)
		}
	}
}
