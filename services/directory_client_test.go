package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andre-fig/backoffice/db"
)

// newDirectoryServer serves users in pages of two, keyed by cursor "p<n>"
func newDirectoryServer(t *testing.T, users []db.DirectoryUser, appIDs map[string]string) *httptest.Server {
	t.Helper()
	byID := make(map[string]db.DirectoryUser, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		offset := 0
		if cursor := r.URL.Query().Get("cursor"); cursor == "p1" {
			offset = 2
		} else if cursor == "p2" {
			offset = 4
		}

		page := db.DirectoryUserPage{Data: []db.UserData{}}
		for i := offset; i < len(users) && i < offset+2; i++ {
			page.Data = append(page.Data, db.UserData{ID: users[i].ID, Name: users[i].Name})
		}
		if offset+2 < len(users) {
			next := "p1"
			if offset == 2 {
				next = "p2"
			}
			page.Meta.HasNextPage = true
			page.Meta.Next = &next
		}
		_ = json.NewEncoder(w).Encode(page)
	})
	mux.HandleFunc("/admin/users/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/admin/users/")
		if id, ok := strings.CutSuffix(rest, "/messaging-identity"); ok {
			appID, found := appIDs[id]
			if !found {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(db.MessagingIdentity{UserID: id, AppID: appID})
			return
		}
		user, ok := byID[rest]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func directoryUser(id, name, group string, sectors ...string) db.DirectoryUser {
	u := db.DirectoryUser{ID: id, Name: name, Active: true}
	if group != "" {
		u.Groups = []db.DirectoryGroup{{ID: group}}
	}
	for _, code := range sectors {
		u.Structs.Sectors = append(u.Structs.Sectors, db.DirectorySector{Code: code, Name: "Sector " + code})
	}
	return u
}

func sampleDirectoryUsers() []db.DirectoryUser {
	return []db.DirectoryUser{
		directoryUser("u1", "Ana", "g1", "SUP"),
		directoryUser("u2", "Bruno", "g1", "FIN"),
		directoryUser("u3", "Carla", "g2", "HR"),
		directoryUser("u4", "Davi", "g2", "SUP", "FIN"),
		directoryUser("u5", "Eva", "g2", "OPS"),
	}
}

func TestDirectoryClient_GetUser(t *testing.T) {
	srv := newDirectoryServer(t, sampleDirectoryUsers(), nil)
	client := NewDirectoryClient(srv.URL+"/", "test-token", 0)

	user, err := client.GetUser(context.Background(), "u4")
	require.NoError(t, err)
	assert.Equal(t, "Davi", user.Name)
	assert.True(t, user.HasSector("FIN"))

	_, err = client.GetUser(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirectoryClient_ListUsers_Unauthorized(t *testing.T) {
	srv := newDirectoryServer(t, sampleDirectoryUsers(), nil)
	client := NewDirectoryClient(srv.URL, "wrong", 0)

	_, err := client.ListUsers(context.Background(), db.DirectoryUserQuery{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "status 401")
}

func TestDirectoryClient_MatchesApplication(t *testing.T) {
	srv := newDirectoryServer(t, sampleDirectoryUsers(), map[string]string{"u1": "app-1"})
	client := NewDirectoryClient(srv.URL, "test-token", 0)

	ok, err := client.MatchesApplication(context.Background(), "u1", "app-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.MatchesApplication(context.Background(), "u1", "app-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.MatchesApplication(context.Background(), "u2", "app-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirectoryClient_EachUser_Paginates(t *testing.T) {
	srv := newDirectoryServer(t, sampleDirectoryUsers(), nil)
	client := NewDirectoryClient(srv.URL, "test-token", 0)

	var seen []string
	err := client.EachUser(context.Background(), func(u *db.DirectoryUser) bool {
		seen = append(seen, u.ID)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5"}, seen)
}

func TestDirectoryClient_FindUserBySector(t *testing.T) {
	srv := newDirectoryServer(t, sampleDirectoryUsers(), nil)
	client := NewDirectoryClient(srv.URL, "test-token", 0)

	user, err := client.FindUserBySector(context.Background(), "SUP", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u4", user.ID, "excluded user is skipped")

	_, err = client.FindUserBySector(context.Background(), "OPS", "u5")
	assert.True(t, errors.Is(err, ErrNotFound))
}
