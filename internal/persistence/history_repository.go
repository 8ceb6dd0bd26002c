package persistence

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/IliaW/name-check-worker/internal/model"
)

const createHistoryTable = `CREATE TABLE IF NOT EXISTS name_check_history (
	id           VARCHAR(64)  NOT NULL PRIMARY KEY,
	company_name VARCHAR(255) NOT NULL,
	verdict      VARCHAR(16)  NOT NULL DEFAULT '',
	success      BOOLEAN      NOT NULL,
	error        TEXT,
	duration_ms  BIGINT       NOT NULL,
	checked_at   DATETIME     NOT NULL
)`

const insertHistory = "INSERT INTO name_check_history (id, company_name, verdict, success, error, duration_ms, checked_at) VALUES (?, ?, ?, ?, ?, ?, ?)"

type HistoryStorage interface {
	Save(*model.NameCheckResult)
}

type HistoryRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewHistoryRepository(db *sql.DB, log *slog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, log: log}
}

// Migrate creates the history table when it does not exist yet.
func (hr *HistoryRepository) Migrate(ctx context.Context) error {
	_, err := hr.db.ExecContext(ctx, createHistoryTable)
	return err
}

func (hr *HistoryRepository) Save(result *model.NameCheckResult) {
	if result.Cached {
		hr.log.Debug("cached result. skip saving history.")
		return
	}
	_, err := hr.db.Exec(insertHistory, historyRow(result)...)
	if err != nil {
		hr.log.Error("failed to save name check history to database.", slog.String("err", err.Error()))
		return
	}
	hr.log.Debug("name check history saved to db.")
}

func historyRow(result *model.NameCheckResult) []any {
	var verdict string
	if result.Analysis != nil {
		verdict = string(result.Analysis.Verdict)
	}
	return []any{
		result.ID,
		result.Name,
		verdict,
		result.Success,
		result.Error,
		result.Duration.Milliseconds(),
		result.CheckedAt.UTC(),
	}
}

// NoopStorage is used when the database is disabled.
type NoopStorage struct{}

func (NoopStorage) Save(*model.NameCheckResult) {}
