package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params holds page-number pagination parameters extracted from a request.
type Params struct {
	PageNumber int
	PageSize   int
}

// FromContext reads pageNumber and pageSize from the query string. Missing or
// non-positive values fall back to page 1 and DefaultPageSize.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("pageNumber"))
	size, _ := strconv.Atoi(c.QueryParam("pageSize"))
	return New(page, size)
}

// New normalises raw page values.
func New(pageNumber, pageSize int) Params {
	if pageNumber <= 0 {
		pageNumber = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Params{PageNumber: pageNumber, PageSize: pageSize}
}

// Skip returns the number of rows preceding the page.
func (p Params) Skip() int {
	return (p.PageNumber - 1) * p.PageSize
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Skip()+p.PageSize < total
}

// Response wraps a paginated API response.
type Response struct {
	Items      interface{} `json:"items"`
	TotalCount int         `json:"total_count"`
	PageNumber int         `json:"page_number"`
	PageSize   int         `json:"page_size"`
	HasNext    bool        `json:"has_next"`
}

func NewResponse(items interface{}, total int, p Params) *Response {
	return &Response{
		Items:      items,
		TotalCount: total,
		PageNumber: p.PageNumber,
		PageSize:   p.PageSize,
		HasNext:    p.HasNext(total),
	}
}
