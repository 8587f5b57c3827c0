package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Result is one player's outcome in a finished game
type Result struct {
	// Game is the game channel the session ran on
	Game string `json:"game" validate:"required"`
	// Session is the finished session's ID
	Session string `json:"session" validate:"required"`
	// Player is the player's display name
	Player string `json:"player" validate:"required"`
	// Score is the player's final score
	Score int `json:"score"`
	// Won marks the game's winner(s)
	Won bool `json:"won"`
	// FinishedAt is when the game ended
	FinishedAt time.Time `json:"finished_at"`
}

// Entry is one player's row on a game's leaderboard
type Entry struct {
	// Player is the player's display name
	Player string `json:"player"`
	// GamesPlayed is the number of recorded games
	GamesPlayed int `json:"games_played"`
	// Wins is the number of recorded wins
	Wins int `json:"wins"`
	// BestScore is the player's highest recorded score
	BestScore int `json:"best_score"`
}

// Archive is the durable record of finished games. Live session state never
// touches it; the route layer writes results once at game end.
type Archive interface {
	// RecordResults stores the outcome of one finished game
	RecordResults(ctxt context.Context, results []Result) error
	// Leaderboard ranks a game's players by wins, then best score
	Leaderboard(ctxt context.Context, game string, limit int) ([]Entry, error)
	// Close closes the archive
	Close() error
}

// sqliteArchive implements Archive against a SQLite file
type sqliteArchive struct {
	common.Component
	db *sql.DB
}

// OpenSQLiteArchive open, or create, the finished-game archive at dbFile.
// WAL mode allows leaderboard reads during result writes; a single writer
// connection avoids SQLITE_BUSY on concurrent inserts.
func OpenSQLiteArchive(dbFile string) (Archive, error) {
	logTags := log.Fields{
		"module": "history", "component": "sqlite-archive", "instance": dbFile,
	}
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s failed: %w", dbFile, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to archive %s failed: %w", dbFile, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %q failed: %w", pragma, err)
		}
	}
	schema := `CREATE TABLE IF NOT EXISTS game_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game TEXT NOT NULL,
		session TEXT NOT NULL,
		player TEXT NOT NULL,
		score INTEGER NOT NULL,
		won INTEGER NOT NULL DEFAULT 0,
		finished_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_game_results_game ON game_results(game);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrapping archive schema failed: %w", err)
	}
	log.WithFields(logTags).Info("Opened finished-game archive")
	return &sqliteArchive{
		Component: common.Component{LogTags: logTags}, db: db,
	}, nil
}

func (a *sqliteArchive) RecordResults(ctxt context.Context, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctxt, nil)
	if err != nil {
		return fmt.Errorf("starting result insert failed: %w", err)
	}
	stmt, err := tx.PrepareContext(
		ctxt,
		`INSERT INTO game_results (game, session, player, score, won, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("preparing result insert failed: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, result := range results {
		finishedAt := result.FinishedAt
		if finishedAt.IsZero() {
			finishedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(
			ctxt,
			result.Game,
			result.Session,
			result.Player,
			result.Score,
			result.Won,
			finishedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("inserting result for %s failed: %w", result.Player, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing results failed: %w", err)
	}
	log.WithFields(a.LogTags).Infof(
		"Recorded %d results for game %s", len(results), results[0].Game,
	)
	return nil
}

func (a *sqliteArchive) Leaderboard(
	ctxt context.Context, game string, limit int,
) ([]Entry, error) {
	rows, err := a.db.QueryContext(
		ctxt,
		`SELECT player, COUNT(*), SUM(won), MAX(score)
		 FROM game_results WHERE game = ?
		 GROUP BY player
		 ORDER BY SUM(won) DESC, MAX(score) DESC, player ASC
		 LIMIT ?`,
		game,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query for %s failed: %w", game, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.Player, &entry.GamesPlayed, &entry.Wins, &entry.BestScore,
		); err != nil {
			return nil, fmt.Errorf("reading leaderboard row failed: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard scan for %s failed: %w", game, err)
	}
	return entries, nil
}

func (a *sqliteArchive) Close() error {
	return a.db.Close()
}
