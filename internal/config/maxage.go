package config

import (
	"strconv"
	"time"

	"github.com/csvleech/leech/internal/errors"
)

// ParseMaxAge parses the custom max-age grammar named in §6: an
// integer followed by one of the suffixes s/m/h/d/w. Go's
// time.ParseDuration covers s/m/h but not d/w, and no ecosystem
// package in the reference corpus covers exactly this grammar, so it
// is hand-written against the standard library's strconv.
func ParseMaxAge(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, errors.NewConfigError(errors.CodeInvalidMaxAge, "max-age too short: "+s)
	}

	suffix := s[len(s)-1]
	var unit time.Duration
	switch suffix {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, errors.NewConfigError(errors.CodeInvalidMaxAge, "unknown max-age suffix in "+s)
	}

	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n < 0 {
		return 0, errors.NewConfigError(errors.CodeInvalidMaxAge, "invalid max-age quantity in "+s)
	}

	return time.Duration(n) * unit, nil
}
