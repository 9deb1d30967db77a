package recurrence

import (
	"fmt"
	"sync"
	"time"
)

// TimeZoneResolver maps a zone identifier to its rules.
type TimeZoneResolver interface {
	Resolve(tzid string) (*time.Location, error)
}

// LocationResolver resolves IANA identifiers through the tz database and
// memoizes the results. "UTC" and the empty string resolve to time.UTC.
type LocationResolver struct {
	mu    sync.RWMutex
	cache map[string]*time.Location
}

func NewLocationResolver() *LocationResolver {
	return &LocationResolver{cache: make(map[string]*time.Location)}
}

func (r *LocationResolver) Resolve(tzid string) (*time.Location, error) {
	if tzid == "" || tzid == "UTC" {
		return time.UTC, nil
	}

	r.mu.RLock()
	loc, ok := r.cache[tzid]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", tzid, err)
	}

	r.mu.Lock()
	r.cache[tzid] = loc
	r.mu.Unlock()
	return loc, nil
}
