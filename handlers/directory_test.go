package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/andre-fig/backoffice/db"
	"github.com/andre-fig/backoffice/services"
)

// MockDirectoryLister
type MockDirectoryLister struct {
	mock.Mock
}

func (m *MockDirectoryLister) ListDirectoryUsers(ctx context.Context, q db.DirectoryUserQuery) (*db.DirectoryUserPage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.DirectoryUserPage), args.Error(1)
}

func TestDirectoryHandler_ListUsers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := new(MockDirectoryLister)
	h := NewDirectoryHandler(svc)
	r := gin.New()
	r.GET("/directory/users", h.ListUsers)

	q := db.DirectoryUserQuery{Filter: "ana", PerPage: 20, Cursor: "abc"}
	svc.On("ListDirectoryUsers", mock.Anything, q).
		Return(&db.DirectoryUserPage{Data: []db.UserData{{ID: "u1", Name: "Ana"}}}, nil)

	w := perform(r, "GET", "/directory/users?filter=ana&perPage=20&cursor=abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Ana"`)
	svc.AssertExpectations(t)

	w = perform(r, "GET", "/directory/users?perPage=many", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDirectoryHandler_UpstreamFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := new(MockDirectoryLister)
	r := gin.New()
	r.GET("/directory/users", NewDirectoryHandler(svc).ListUsers)

	svc.On("ListDirectoryUsers", mock.Anything, mock.Anything).Return(nil, errors.New("directory error: status 502"))
	w := perform(r, "GET", "/directory/users", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	svc2 := new(MockDirectoryLister)
	r2 := gin.New()
	r2.GET("/directory/users", NewDirectoryHandler(svc2).ListUsers)
	svc2.On("ListDirectoryUsers", mock.Anything, mock.Anything).Return(nil, services.ErrNotFound)
	w = perform(r2, "GET", "/directory/users", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
