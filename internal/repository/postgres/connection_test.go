package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/service/token"
)

func TestConnectionRepo_GetConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	refreshed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	created := refreshed.Add(-48 * time.Hour)

	mock.ExpectQuery("SELECT organization_id, access_token").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"organization_id", "access_token", "refresh_token", "scope",
			"pco_user_id", "last_refreshed_at", "created_at",
		}).AddRow("org-1", "at-1", "rt-1", "people", "u-9", refreshed, created))

	repo := NewConnectionRepo(db)
	conn, err := repo.GetConnection(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", conn.AccessToken)
	assert.Equal(t, "rt-1", conn.RefreshToken)
	assert.Equal(t, "u-9", conn.PCOUserID)
	assert.True(t, conn.LastRefreshedAt.Equal(refreshed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepo_GetConnection_NotConnected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT organization_id, access_token").
		WithArgs("org-absent").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}))

	repo := NewConnectionRepo(db)
	_, err = repo.GetConnection(context.Background(), "org-absent")
	assert.ErrorIs(t, err, token.ErrNotConnected)
}

func TestConnectionRepo_CreateConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	refreshed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO pco_connections").
		WithArgs("org-1", "at-1", "rt-1", "people", "u-9", refreshed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewConnectionRepo(db)
	err = repo.CreateConnection(context.Background(), &domain.Connection{
		OrganizationID:  "org-1",
		AccessToken:     "at-1",
		RefreshToken:    "rt-1",
		Scope:           "people",
		PCOUserID:       "u-9",
		LastRefreshedAt: refreshed,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepo_UpdateTokens_Won(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expected := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := expected.Add(3 * time.Hour)
	mock.ExpectExec("UPDATE pco_connections").
		WithArgs("org-1", expected, "at-2", "rt-2", "people", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewConnectionRepo(db)
	ok, err := repo.UpdateTokens(context.Background(), "org-1", expected, "at-2", "rt-2", "people", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConnectionRepo_UpdateTokens_LostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expected := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := expected.Add(3 * time.Hour)
	mock.ExpectExec("UPDATE pco_connections").
		WithArgs("org-1", expected, "at-2", "rt-2", "people", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewConnectionRepo(db)
	ok, err := repo.UpdateTokens(context.Background(), "org-1", expected, "at-2", "rt-2", "people", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnectionRepo_DeleteConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM pco_connections").
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewConnectionRepo(db)
	require.NoError(t, repo.DeleteConnection(context.Background(), "org-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
