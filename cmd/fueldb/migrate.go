package main

import (
	"context"
	"log/slog"

	"github.com/fullbrim/fueldb/internal/fueldb"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Backfill the flattened station_prices table from stored snapshots",
		Flags: []cli.Flag{
			dbFlag(),
		},
		Action: migrateAction,
	}
}

func migrateAction(c *cli.Context) error {
	ctx := context.Background()
	storage, err := fueldb.NewStorageMigrate(ctx, c.String("db"), slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	defer storage.Close()

	return storage.MigrateStationPrices(ctx)
}
