package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduledRedirect_IsDueForActivation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := ScheduledRedirect{Status: RedirectStatusScheduled, StartDate: now}
	assert.True(t, rec.IsDueForActivation(now), "start == now is due")

	rec.StartDate = now.Add(time.Minute)
	assert.False(t, rec.IsDueForActivation(now))

	rec.StartDate = now.Add(-time.Hour)
	rec.Status = RedirectStatusCancelled
	assert.False(t, rec.IsDueForActivation(now), "cancelled never activates")
}

func TestScheduledRedirect_IsDueForCompletion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	rec := ScheduledRedirect{Status: RedirectStatusActive}
	assert.False(t, rec.IsDueForCompletion(now), "open-ended is never due")

	rec.EndDate = &future
	assert.False(t, rec.IsDueForCompletion(now))

	rec.EndDate = &now
	assert.True(t, rec.IsDueForCompletion(now))

	rec.EndDate = &past
	assert.True(t, rec.IsDueForCompletion(now))

	rec.Status = RedirectStatusScheduled
	assert.False(t, rec.IsDueForCompletion(now))
}

func TestDirectoryUser_Accessors(t *testing.T) {
	var empty DirectoryUser
	assert.Equal(t, "", empty.PrimaryGroupID())
	assert.Equal(t, "", empty.PrimarySectorCode())
	assert.False(t, empty.HasSector("SUP"))

	user := DirectoryUser{
		Groups: []DirectoryGroup{{ID: "g1"}, {ID: "g2"}},
		Structs: DirectoryStructs{Sectors: []DirectorySector{
			{Code: "SUP", Name: "Support"},
			{Code: "FIN", Name: "Finance"},
		}},
	}
	assert.Equal(t, "g1", user.PrimaryGroupID())
	assert.Equal(t, "SUP", user.PrimarySectorCode())
	assert.True(t, user.HasSector("FIN"))

	name, ok := user.SectorName("FIN")
	assert.True(t, ok)
	assert.Equal(t, "Finance", name)

	_, ok = user.SectorName("HR")
	assert.False(t, ok)
}

func TestAccount_Override(t *testing.T) {
	acc := Account{Overrides: map[string]string{"SUP": "u2"}}
	dest, ok := acc.Override("SUP")
	assert.True(t, ok)
	assert.Equal(t, "u2", dest)

	_, ok = (&Account{}).Override("SUP")
	assert.False(t, ok)
}
