package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionRedirect(t *testing.T) {
	tests := []struct {
		from, to RedirectStatus
		want     bool
	}{
		{RedirectStatusScheduled, RedirectStatusActive, true},
		{RedirectStatusScheduled, RedirectStatusCancelled, true},
		{RedirectStatusActive, RedirectStatusCompleted, true},
		{RedirectStatusScheduled, RedirectStatusCompleted, false},
		{RedirectStatusActive, RedirectStatusCancelled, false},
		{RedirectStatusActive, RedirectStatusScheduled, false},
		{RedirectStatusCompleted, RedirectStatusActive, false},
		{RedirectStatusCancelled, RedirectStatusScheduled, false},
		{RedirectStatusScheduled, RedirectStatusScheduled, false},
		{RedirectStatusActive, RedirectStatusActive, false},
		{"bogus", RedirectStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionRedirect(tt.from, tt.to))
		})
	}
}

func TestRedirectStatus_IsTerminal(t *testing.T) {
	assert.False(t, RedirectStatusScheduled.IsTerminal())
	assert.False(t, RedirectStatusActive.IsTerminal())
	assert.True(t, RedirectStatusCompleted.IsTerminal())
	assert.True(t, RedirectStatusCancelled.IsTerminal())
}
