package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

var (
	csvPath = flag.String("csv", "data/buildings.csv", "Path to the building CSV")
	dsn     = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
	owner   = flag.String("owner", "testUser1", "Username whose profile the buildings are linked to")
	dryRun  = flag.Bool("dry-run", false, "Parse only; no DB writes")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fatalf("CSV file not found: %v", err)
	}
	rows, skips, err := readRows(bufio.NewReader(f))
	f.Close()
	if err != nil {
		fatalf("CSV error: %v", err)
	}
	for _, s := range skips {
		fmt.Printf("line %d: skipping, %s\n", s.Line, s.Reason)
	}
	fmt.Printf("Parsed %d buildings from %s\n", len(rows), *csvPath)

	if *dryRun {
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if len(rows) == 0 {
		fmt.Println("CSV file is empty. Nothing to import.")
		return
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		fatalf("begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	userID, err := ownerProfile(ctx, tx, *owner)
	if err != nil {
		fatalf("%v", err)
	}

	created, outside := 0, 0
	for _, row := range rows {
		id, err := insertBuilding(ctx, tx, row)
		if errors.Is(err, sql.ErrNoRows) {
			outside++
			fmt.Printf("line %d: skipping, location is not within district %q\n", row.Line, row.District)
			continue
		}
		if err != nil {
			fatalf("line %d: insert: %v", row.Line, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rentals.profile_buildings (user_id, building_id, created_at) VALUES ($1, $2, now())`,
			userID, id); err != nil {
			fatalf("line %d: link: %v", row.Line, err)
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		fatalf("commit: %v", err)
	}
	fmt.Printf("Imported %d buildings. Skipped %d rows.\n", created, len(skips)+outside)
}

// ownerProfile returns the user id for username, creating the profile row
// if the user has none.
func ownerProfile(ctx context.Context, tx *sql.Tx, username string) (string, error) {
	var userID string
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM app_auth.users WHERE username = $1`, username).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user with username %q not found", username)
	}
	if err != nil {
		return "", fmt.Errorf("lookup owner: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO app_auth.profiles (user_id, phone_number, address) VALUES ($1, '', '') ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return "", fmt.Errorf("ensure profile: %w", err)
	}
	return userID, nil
}

const insertSQL = `
INSERT INTO rentals.buildings (
	title, county, district, address, location, pets_allowed, available_from,
	rental_price, num_bedrooms, num_bathrooms, square_meters, is_available,
	description, amenities, owner_contact, created_at, updated_at
)
SELECT $1, $2, d.name, $3, pt.g, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now()
FROM rentals.districts d,
     LATERAL (SELECT ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography AS g) pt
WHERE d.name = $16 AND ST_Covers(d.boundary, pt.g)
RETURNING id`

// insertBuilding only inserts when the district exists and covers the
// point; otherwise it returns sql.ErrNoRows.
func insertBuilding(ctx context.Context, tx *sql.Tx, row Row) (int64, error) {
	pets := row.PetsAllowed != nil && *row.PetsAllowed
	available := row.IsAvailable == nil || *row.IsAvailable

	var id int64
	err := tx.QueryRowContext(ctx, insertSQL,
		row.Title, row.County, row.Address, row.Lon, row.Lat,
		pets, row.AvailableFrom, orZero(row.RentalPrice),
		orZeroInt(row.NumBedrooms), orZeroInt(row.NumBathrooms), orZero(row.SquareMeters),
		available, row.Description, pq.Array(row.Amenities), row.OwnerContact,
		row.District,
	).Scan(&id)
	return id, err
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func orZeroInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
