package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andre-fig/backoffice/internal/config"
)

func TestWithUTC(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"url", "postgres://u:p@localhost:5432/appchat?sslmode=disable", "postgres://u:p@localhost:5432/appchat?sslmode=disable&timezone=UTC"},
		{"url without query", "postgresql://localhost/backoffice", "postgresql://localhost/backoffice?timezone=UTC"},
		{"url keeps explicit zone", "postgres://localhost/appchat?timezone=America%2FSao_Paulo", "postgres://localhost/appchat?timezone=America%2FSao_Paulo"},
		{"key value", "host=localhost dbname=appchat", "host=localhost dbname=appchat timezone=UTC"},
		{"key value keeps explicit zone", "host=localhost timezone=GMT", "host=localhost timezone=GMT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := withUTC(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RequiresDatabaseAndDirectory(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.Config{AppChatDatabaseURL: "postgres://localhost/appchat"}, nil)
	assert.Error(t, err)
}
