// Package handlers implements the HTTP handlers of the Slawatch API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListResponse is the envelope of paginated list endpoints.
type ListResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func newListResponse[T any](items []T, total int, page models.Page) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: total, Page: page.Number, PageSize: page.Size}
}

// parseIDParam parses a UUID path parameter, writing 400 on failure.
func parseIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalUUIDQuery parses an optional UUID query parameter.
func parseOptionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &id, true
}

// pageFromQuery reads page and page_size, clamped to the allowed range.
func pageFromQuery(c *gin.Context) models.Page {
	number, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(models.DefaultPageSize)))
	return models.NewPage(number, size)
}

// isNotFound reports whether err means the record is absent for the tenant.
func isNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
