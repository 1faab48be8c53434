package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds page-based pagination parameters extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext extracts pagination parameters from the echo context.
// Both "page"/"limit" and the offset form "offset" are accepted; an explicit
// page wins over an offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		if offset < 0 {
			offset = 0
		}
		page = offset/limit + 1
	}

	return Params{Page: page, Limit: limit}
}

// Default returns the first page with the default limit.
func Default() Params {
	return Params{Page: 1, Limit: DefaultLimit}
}

// Offset returns the row offset for SQL queries.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Limit < total
}

// Meta is the pagination block returned with every list response.
type Meta struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

// NewMeta computes the page count for total rows. An empty result still
// reports one page so clients can render "page 1 of 1".
func (p Params) NewMeta(total int) Meta {
	pages := 1
	if p.Limit > 0 && total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	current := p.Page
	if current < 1 {
		current = 1
	}
	return Meta{Current: current, Pages: pages, Total: total}
}
