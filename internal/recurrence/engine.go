package recurrence

import (
	"errors"
	"time"
)

var jst = time.FixedZone("JST", 9*60*60)

// DefaultMaxOccurrences bounds a single projection.
const DefaultMaxOccurrences = 1000

// ErrInvalidLimit indicates a non-positive occurrence limit.
var ErrInvalidLimit = errors.New("recurrence: occurrence limit must be positive")

// EngineConfig holds configuration options for the projection engine.
type EngineConfig struct {
	// Location is the zone calendar dates are interpreted in. Nil means JST.
	Location *time.Location
	// MaxOccurrences truncates projections that would produce more dates.
	MaxOccurrences int
	CacheEnabled   bool
	Cache          CacheConfig
}

// DefaultEngineConfig returns the engine defaults with caching enabled.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Location:       jst,
		MaxOccurrences: DefaultMaxOccurrences,
		CacheEnabled:   true,
		Cache:          DefaultCacheConfig,
	}
}

// Projection is the result of expanding one series over a range.
type Projection struct {
	Dates []Date
	// Truncated is set when the range produced more than MaxOccurrences dates.
	Truncated bool
}

// Engine wraps Project with an occurrence cap and an optional result cache.
type Engine struct {
	location       *time.Location
	maxOccurrences int
	cache          *Cache
}

// NewEngine constructs an Engine. If config.Location is nil, Asia/Tokyo (JST)
// is used.
func NewEngine(config EngineConfig) (*Engine, error) {
	loc := config.Location
	if loc == nil {
		loc = jst
	}
	limit := config.MaxOccurrences
	if limit == 0 {
		limit = DefaultMaxOccurrences
	}
	if limit < 0 {
		return nil, ErrInvalidLimit
	}

	engine := &Engine{location: loc, maxOccurrences: limit}
	if config.CacheEnabled {
		engine.cache = NewCache(config.Cache)
	}
	return engine, nil
}

// Location returns the zone the engine interprets dates in.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return jst
	}
	return e.location
}

// Today returns the current calendar date in the engine's location.
func (e *Engine) Today(now time.Time) Date {
	return DateOf(now.In(e.Location()))
}

// Project expands rule over [start, end] the same way the package-level
// Project does, capping the result at the configured limit.
func (e *Engine) Project(rule Rule, anchor, start, end Date, exceptions ExceptionIndex) (Projection, error) {
	var key string
	if e.cache != nil {
		key = cacheKey(rule, anchor, start, end, exceptions)
		if dates, ok := e.cache.Get(key); ok {
			return e.capped(dates), nil
		}
	}

	dates, err := Project(rule, anchor, start, end, exceptions)
	if err != nil {
		return Projection{}, err
	}
	if e.cache != nil {
		e.cache.Set(key, dates)
	}
	return e.capped(dates), nil
}

func (e *Engine) capped(dates []Date) Projection {
	if len(dates) > e.maxOccurrences {
		return Projection{Dates: dates[:e.maxOccurrences], Truncated: true}
	}
	return Projection{Dates: dates}
}

// CacheStats reports cache usage. It is zero when caching is disabled.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Close releases the cache cleanup loop.
func (e *Engine) Close() {
	if e != nil && e.cache != nil {
		e.cache.Close()
	}
}
