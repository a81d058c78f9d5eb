package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/model"
)

// AppStateStore manages the single-row app_state table (spec §3.3).
type AppStateStore struct {
	db *sql.DB
}

func NewAppStateStore(db *sql.DB) *AppStateStore {
	return &AppStateStore{db: db}
}

// Get returns the global app_state row, seeded by migration.
func (s *AppStateStore) Get(ctx context.Context) (*model.AppState, error) {
	var st model.AppState
	var lastUpdate sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, last_yt_dlp_update FROM app_state WHERE id=?`, model.GlobalStateID).
		Scan(&st.ID, &lastUpdate)
	if err != nil {
		return nil, apperrors.NewDatabaseOperationError("", "", "get app state", err)
	}
	st.LastYtDlpUpdate, err = scanNullTime(lastUpdate)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SetLastYtDlpUpdate records when yt-dlp's self-update last ran.
func (s *AppStateStore) SetLastYtDlpUpdate(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE app_state SET last_yt_dlp_update=? WHERE id=?`, formatTime(t), model.GlobalStateID)
	if err != nil {
		return apperrors.NewDatabaseOperationError("", "", "set last yt-dlp update", err)
	}
	return nil
}
