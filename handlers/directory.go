package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andre-fig/backoffice/db"
)

type DirectoryLister interface {
	ListDirectoryUsers(ctx context.Context, q db.DirectoryUserQuery) (*db.DirectoryUserPage, error)
}

type DirectoryHandler struct {
	Service DirectoryLister
}

func NewDirectoryHandler(service DirectoryLister) *DirectoryHandler {
	return &DirectoryHandler{Service: service}
}

// ListUsers passes a page of the user directory through to the admin UI
func (h *DirectoryHandler) ListUsers(c *gin.Context) {
	var q db.DirectoryUserQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.Service.ListDirectoryUsers(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}
