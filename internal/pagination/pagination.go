// Package pagination provides page/limit parsing and page-count math for
// offset-paginated listings.
package pagination

import (
	"errors"
	"math"
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

var ErrInvalidPage = errors.New("page must be >= 1 and limit between 1 and 100")

// Params is a validated page/limit pair.
type Params struct {
	Page  int
	Limit int
}

// Parse validates raw query values. Empty strings select the defaults.
func Parse(pageStr, limitStr string) (Params, error) {
	p := Params{Page: DefaultPage, Limit: DefaultLimit}

	if pageStr != "" {
		n, err := strconv.Atoi(pageStr)
		if err != nil || n < 1 {
			return Params{}, ErrInvalidPage
		}
		p.Page = n
	}
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > MaxLimit {
			return Params{}, ErrInvalidPage
		}
		p.Limit = n
	}
	// Reject pages whose offset would not fit in an int. Without this,
	// (page-1)*limit wraps negative and an astronomical page serves
	// page-1 content.
	if p.Page-1 > math.MaxInt/p.Limit {
		return Params{}, ErrInvalidPage
	}
	return p, nil
}

// Offset returns the number of records to skip for this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pages returns the total page count for a result set: ceil(total/limit).
func Pages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
