package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/refdata"
)

var (
	manifestPath = flag.String("manifest", "data/refdata.yaml", "Path to the reference data manifest")
	dsn          = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
	dryRun       = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
	confirm      = flag.Bool("confirm", false, "Required to replace the reference tables")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	m, err := refdata.LoadManifest(*manifestPath)
	if err != nil {
		fatalf("manifest: %v", err)
	}
	ds, err := m.Dataset(ctx)
	if err != nil {
		fatalf("read layers: %v", err)
	}
	if err := ds.Check(); err != nil {
		fatalf("validation failed: %v", err)
	}
	fmt.Printf("Loaded districts=%d shops=%d bus_stops=%d routes=%d from %s\n",
		len(ds.Districts), len(ds.Shops), len(ds.BusStops), len(ds.Routes), *manifestPath)

	if *dryRun {
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if !*confirm {
		fatalf("Refusing to run without --confirm. Add --dry-run to preview.")
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	lg := logger.Build(logger.Config{Level: os.Getenv("LOG_LEVEL"), Console: true, Component: "load-refdata"}, os.Stderr)
	gdb, err := db.Connect(*dsn, lg)
	if err != nil {
		fatalf("connect: %v", err)
	}
	if err := refdata.Init(gdb); err != nil {
		fatalf("init: %v", err)
	}

	if err := refdata.Sync(ctx, gdb, ds); err != nil {
		if errors.Is(err, refdata.ErrDistrictInUse) {
			fatalf("a district missing from the manifest is still referenced by buildings; nothing was changed")
		}
		fatalf("sync: %v", err)
	}
	fmt.Println("Reference data replaced.")
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
