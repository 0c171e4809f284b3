package pagination

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Params holds pagination parameters extracted from a request. A Limit of 0
// means the whole collection is returned.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts limit and offset query parameters. maxLimit caps the
// page size; when it is 0 list endpoints are unbounded unless the client
// asks for a limit.
func FromContext(c echo.Context, maxLimit int) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 0 {
		limit = 0
	}
	if maxLimit > 0 && (limit == 0 || limit > maxLimit) {
		limit = maxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Unbounded reports whether the request asks for every row.
func (p Params) Unbounded() bool {
	return p.Limit <= 0
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return !p.Unbounded() && p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 || p.Unbounded() {
		return 0
	}
	return prev
}

// LinkHeader builds an RFC 8288 Link header value with next and prev
// relations for basePath. It returns "" when there is nothing to link.
func (p Params) LinkHeader(basePath string, total int) string {
	var links []string
	if p.HasNext(total) {
		links = append(links, fmt.Sprintf(`<%s?limit=%d&offset=%d>; rel="next"`, basePath, p.Limit, p.NextOffset()))
	}
	if p.HasPrevious() && !p.Unbounded() {
		links = append(links, fmt.Sprintf(`<%s?limit=%d&offset=%d>; rel="prev"`, basePath, p.Limit, p.PreviousOffset()))
	}
	return strings.Join(links, ", ")
}
