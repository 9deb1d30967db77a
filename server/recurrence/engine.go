package recurrence

import (
	"fmt"
	"log/slog"
	"time"
)

// Engine provides cached, capped recurrence expansion
type Engine struct {
	cache  *RecurrenceCache
	config EngineConfig
	logger *slog.Logger
}

// NewEngine creates a recurrence engine with DefaultEngineConfig
func NewEngine(opts ...EngineOption) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, opts...)
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Occurrences materializes the starts of a series that lie in window, ascending.
// At most MaxOccurrencesPerEvent starts are returned; Truncated reports whether
// the cap cut the result short.
func (e *Engine) Occurrences(info RecurrenceInfo, dtstart time.Time, window Window) (Expansion, error) {
	if !window.Start.Before(window.End) {
		return Expansion{}, nil
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(dtstart, info, window); ok {
			return cached, nil
		}
	}

	seq, err := Generate(info, dtstart, window)
	if err != nil {
		return Expansion{}, fmt.Errorf("failed to expand recurrence: %w", err)
	}

	var result Expansion
	limit := e.config.MaxOccurrencesPerEvent
	for t := range seq {
		if limit > 0 && len(result.Starts) >= limit {
			result.Truncated = true
			break
		}
		result.Starts = append(result.Starts, t)
	}
	if result.Truncated {
		e.logger.Warn("recurrence expansion truncated",
			"rule", info.ruleText(),
			"dtstart", dtstart,
			"window_start", window.Start,
			"window_end", window.End,
			"limit", limit)
	}

	if e.cache != nil {
		e.cache.Set(dtstart, info, window, result)
	}
	return result, nil
}

// LastOccurrence returns the final start of a bounded series, or false if the
// series never ends.
func (e *Engine) LastOccurrence(info RecurrenceInfo, dtstart time.Time) (time.Time, bool, error) {
	return Last(info, dtstart)
}

// Close releases the engine's cache
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// CacheStats returns statistics of the expansion cache, zero when disabled
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}
