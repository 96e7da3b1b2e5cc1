package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripts(t *testing.T) {
	names, err := Scripts(Backoffice)
	require.NoError(t, err)
	assert.Equal(t, []string{"backoffice_001_scheduled_redirects.sql"}, names)

	names, err = Scripts(AppChat)
	require.NoError(t, err)
	assert.Equal(t, []string{"appchat_001_chats_subject_index.sql"}, names)
}

func TestApply(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scheduled_redirects").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := Apply(context.Background(), pg, Backoffice)
	require.NoError(t, err)
	assert.Equal(t, []string{"backoffice_001_scheduled_redirects.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_Failure(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec("idx_chats_user_subject").WillReturnError(errors.New("relation \"chats\" does not exist"))

	applied, err := Apply(context.Background(), pg, AppChat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appchat_001_chats_subject_index.sql")
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
