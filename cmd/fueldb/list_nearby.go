package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/muesli/gominatim"
	"github.com/urfave/cli/v2"

	"github.com/fullbrim/fueldb/internal/fueldb"
	"github.com/fullbrim/fueldb/internal/query"
	"github.com/fullbrim/fueldb/pkg/api"
)

func listNearbyCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-nearby",
		Usage: "List cheapest nearby fuel stations",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:     "location",
				Usage:    "Location to search (geocoded)",
				Required: false,
			},
			&cli.Float64Flag{
				Name:  "lat",
				Usage: "Latitude of the location",
			},
			&cli.Float64Flag{
				Name:  "long",
				Usage: "Longitude of the location",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Search radius in kilometers",
				Value:   query.DefaultRadiusKm,
			},
			&cli.StringFlag{
				Name:  "fuel",
				Usage: "Fuel type (unleaded, diesel, E10, E5, B7, SDV, LPG)",
				Value: "unleaded",
			},
		},
		Action: listNearbyAction,
	}
}

func listNearbyAction(c *cli.Context) error {
	lat := c.Float64("lat")
	lng := c.Float64("long")
	radius := c.Float64("radius")
	fuel := c.String("fuel")
	loc := c.String("location")

	if loc != "" {
		return listNearbyByName(c.String("db"), loc, radius, fuel)
	}

	if lat == 0 && lng == 0 {
		return errors.New("location or latitude and longitude are required")
	}

	return listNearbyStations(c.String("db"), lat, lng, radius, fuel)
}

func listNearbyByName(dbPath, name string, radiusKm float64, fuel string) error {
	gominatim.SetServer("https://nominatim.openstreetmap.org/")
	qry := gominatim.SearchQuery{
		Q: name,
	}

	resp, err := qry.Get()
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		return fmt.Errorf("no results found for location: %s", name)
	}
	fmt.Println("Location found:", resp[0].DisplayName)

	lat, err1 := strconv.ParseFloat(resp[0].Lat, 64)
	if err1 != nil {
		return err1
	}
	lon, err2 := strconv.ParseFloat(resp[0].Lon, 64)
	if err2 != nil {
		return err2
	}
	return listNearbyStations(dbPath, lat, lon, radiusKm, fuel)
}

func listNearbyStations(dbPath string, lat, lng, radiusKm float64, fuel string) error {
	ctx := context.Background()
	storage, err := fueldb.NewStorage(ctx, dbPath, slog.New(slog.DiscardHandler))
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}
	defer storage.Close()

	fuelCode := api.CanonicalFuel(fuel)
	fmt.Printf("Filtering %s stations within %g km radius...\n\n", fuelLabel(fuelCode), radiusKm)

	results, err := storage.Nearby(ctx, query.Options{
		Lat:      lat,
		Lng:      lng,
		RadiusKm: radiusKm,
		Fuel:     fuelCode,
	})
	if err != nil {
		return fmt.Errorf("error fetching nearby stations: %w", err)
	}

	for i, result := range results {
		fmt.Printf("%d. %s [%s]\n", i+1, result.Name, result.Retailer)
		if result.Address != "" {
			fmt.Printf("   Address: %s\n", result.Address)
		}
		fmt.Printf("   Distance: %.2f km\n", result.DistanceKm)
		fmt.Printf("   Price: %s\n", formatPence(result.Price))
		if result.LastUpdated != "" {
			fmt.Printf("   Updated: %s\n", result.LastUpdated)
		}
		fmt.Println()
	}

	fmt.Printf("Found %d stations within %g km radius\n\n", len(results), radiusKm)

	return nil
}

func fuelLabel(code string) string {
	if label, ok := api.FuelLabels[code]; ok {
		return label
	}
	return code
}

func formatPence(pence int) string {
	return fmt.Sprintf("%dp", pence)
}
