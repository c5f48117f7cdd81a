package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/fullbrim/fueldb/internal/fueldb"
	"github.com/urfave/cli/v2"
)

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete snapshots older than N days and reclaim space",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.IntFlag{
				Name:  "days",
				Usage: "Delete records older than this many days",
				Value: 90,
			},
		},
		Action: cleanupAction,
	}
}

func cleanupAction(c *cli.Context) error {
	ctx := context.Background()
	storage, err := fueldb.NewStorage(ctx, c.String("db"), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := storage.DeleteOldRecords(ctx, c.Int("days")); err != nil {
		return err
	}
	return storage.VacuumDatabase(ctx)
}
