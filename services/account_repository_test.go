package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumns = []string{"id", "app_id", "allowed_groups", "pool"}

func newAccountRepo(t *testing.T) (*AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	return NewAccountRepository(pg), mock
}

func TestAccountRepository_FindByAllowedGroup(t *testing.T) {
	repo, mock := newAccountRepo(t)

	mock.ExpectQuery("WHERE \\$1 = ANY\\(allowed_groups\\)").
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow("acc-1", "app-1", "{g1,g2}", `{"config":{"overrides":{"SUP":"u2"}}}`))

	acc, err := repo.FindByAllowedGroup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, "app-1", acc.AppID)
	assert.Equal(t, []string{"g1", "g2"}, acc.AllowedGroups)
	assert.Equal(t, map[string]string{"SUP": "u2"}, acc.Overrides)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_FindByAllowedGroup_NotFound(t *testing.T) {
	repo, mock := newAccountRepo(t)

	mock.ExpectQuery("WHERE \\$1 = ANY\\(allowed_groups\\)").
		WithArgs("g9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByAllowedGroup(context.Background(), "g9")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAccountRepository_FindByOverride(t *testing.T) {
	repo, mock := newAccountRepo(t)

	mock.ExpectQuery("pool->'config'->'overrides'->>\\$1 = \\$2").
		WithArgs("SUP", "u2").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow("acc-1", nil, "{}", `{"config":{"overrides":{"SUP":"u2"}}}`))

	acc, err := repo.FindByOverride(context.Background(), "SUP", "u2")
	require.NoError(t, err)
	assert.Equal(t, "", acc.AppID)
	dest, ok := acc.Override("SUP")
	assert.True(t, ok)
	assert.Equal(t, "u2", dest)
}

func TestAccountRepository_List(t *testing.T) {
	repo, mock := newAccountRepo(t)

	mock.ExpectQuery("FROM accounts WHERE pool->'config' IS NOT NULL").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow("acc-1", "app-1", "{g1}", `{"config":{}}`).
			AddRow("acc-2", "app-2", "{g2}", `{"config":{"overrides":{"FIN":"u7"}}}`))

	accounts, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.NotNil(t, accounts[0].Overrides)
	assert.Empty(t, accounts[0].Overrides)
	assert.Equal(t, "u7", accounts[1].Overrides["FIN"])
}

func TestAccountRepository_List_InvalidPool(t *testing.T) {
	repo, mock := newAccountRepo(t)

	mock.ExpectQuery("FROM accounts").
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow("acc-1", "app-1", "{g1}", `not json`))

	_, err := repo.List(context.Background())
	assert.Error(t, err)
}

func TestAccountRepository_SetOverride(t *testing.T) {
	repo, mock := newAccountRepo(t)

	mock.ExpectExec("SET pool = jsonb_set").
		WithArgs("acc-1", "SUP", "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET pool = jsonb_set").
		WithArgs("acc-9", "SUP", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetOverride(context.Background(), "acc-1", "SUP", "u2"))
	err := repo.SetOverride(context.Background(), "acc-9", "SUP", "u2")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_RemoveOverride(t *testing.T) {
	repo, mock := newAccountRepo(t)

	mock.ExpectExec("SET pool = pool #-").
		WithArgs("acc-1", "SUP", "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET pool = pool #-").
		WithArgs("acc-1", "SUP", "u3").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.RemoveOverride(context.Background(), "acc-1", "SUP", "u2")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveOverride(context.Background(), "acc-1", "SUP", "u3")
	require.NoError(t, err)
	assert.False(t, removed, "slot owned by someone else is left alone")
	assert.NoError(t, mock.ExpectationsWereMet())
}
