package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fullbrim/fueldb/internal/fueldb"
	"github.com/urfave/cli/v2"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show stored price history for a retailer and fuel",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:     "retailer",
				Usage:    "Retailer name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "fuel",
				Usage: "Fuel type",
				Value: "unleaded",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of rows (0 for all)",
				Value: 50,
			},
		},
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	ctx := context.Background()
	storage, err := fueldb.NewStorage(ctx, c.String("db"), slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	defer storage.Close()

	points, err := storage.PriceHistory(ctx, c.String("retailer"), c.String("fuel"), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Println("No stored prices for that retailer and fuel.")
		return nil
	}

	for _, p := range points {
		fmt.Printf("%s  %s  %s  %s\n", p.Date, p.Retailer, p.Name, formatPence(p.Price))
	}
	return nil
}
