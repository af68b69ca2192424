package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelgrid/duelgrid/internal/dbconfig"
	"github.com/duelgrid/duelgrid/internal/puzzle"
)

// Mirrors the compiled-in puzzle sets into the puzzles table so ops can
// inspect them with plain SQL. Rooms never read this table; the data of
// record stays compiled in.
func main() {
	ctx := context.Background()

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	for _, setID := range puzzle.SetIDs() {
		records := puzzle.SetRecords(setID)
		total, inserted, skipped, errs := len(records), 0, 0, 0

		for i, rec := range records {
			tag, err := pool.Exec(ctx, `
            INSERT INTO puzzles (set_id, puzzle_index, clues, solution)
            VALUES ($1,$2,$3,$4)
            ON CONFLICT (set_id, puzzle_index) DO NOTHING
        `, setID, i, rec.Clues, rec.Solution)
			if err != nil {
				errs++
				continue
			}
			if tag.RowsAffected() == 1 {
				inserted++
			} else {
				skipped++
			}
		}
		fmt.Printf(
			"Puzzle seed %s: total=%d inserted=%d skipped=%d errors=%d\n",
			setID, total, inserted, skipped, errs,
		)
	}
}
