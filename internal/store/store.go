package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lox/chinesepoker/internal/report"
)

//go:embed schema.sql
var schema embed.FS

// ErrNotFound is returned when a game does not exist.
var ErrNotFound = errors.New("game not found")

type DB struct{ *pgxpool.Pool }

func Open(ctx context.Context, dsn string) (*DB, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close()                         { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// SaveGame stores a solved game and one row per seat. Saving the same ID
// twice replaces the earlier record.
func (db *DB) SaveGame(ctx context.Context, rec report.GameRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", rec.ID, err)
	}
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO games(id, seed, players, status, iterations, elapsed_ms, record, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE
			   SET status = EXCLUDED.status,
			       iterations = EXCLUDED.iterations,
			       elapsed_ms = EXCLUDED.elapsed_ms,
			       record = EXCLUDED.record
		`, rec.ID, rec.Seed, len(rec.Players), rec.Status, rec.Iterations, rec.ElapsedMS, body, rec.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM game_players WHERE game_id = $1`, rec.ID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, p := range rec.Players {
			score := 0
			if i < len(rec.Round.Totals) {
				score = rec.Round.Totals[i]
			}
			a := p.Arrangement
			batch.Queue(`
				INSERT INTO game_players(game_id, seat, arrangement, fouled, front, middle, back, score)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, rec.ID, p.Seat, a.ID, a.Fouled, a.Categories[0], a.Categories[1], a.Categories[2], score)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// RecentGames returns up to limit games, newest first.
func (db *DB) RecentGames(ctx context.Context, limit int) ([]report.GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(ctx, `
		SELECT record
		  FROM games
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []report.GameRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec report.GameRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("decode game: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Game loads one game by ID.
func (db *DB) Game(ctx context.Context, id string) (report.GameRecord, error) {
	var body []byte
	err := db.QueryRow(ctx, `SELECT record FROM games WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return report.GameRecord{}, ErrNotFound
	}
	if err != nil {
		return report.GameRecord{}, err
	}
	var rec report.GameRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return report.GameRecord{}, fmt.Errorf("decode game %s: %w", id, err)
	}
	return rec, nil
}

// CategoryCount is how often a category appeared on a line across stored
// games.
type CategoryCount struct {
	Line     string `json:"line"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CategoryCounts tallies the stored arrangements by line category.
func (db *DB) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	rows, err := db.Query(ctx, `
		SELECT line, category, COUNT(*)::int
		  FROM (
		        SELECT 'front' AS line, front AS category FROM game_players WHERE NOT fouled
		        UNION ALL
		        SELECT 'middle', middle FROM game_players WHERE NOT fouled
		        UNION ALL
		        SELECT 'back', back FROM game_players WHERE NOT fouled
		       ) lines
		 GROUP BY line, category
		 ORDER BY line, COUNT(*) DESC, category
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[CategoryCount])
}
