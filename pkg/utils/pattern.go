// Package utils provides key matching, time parsing, and serialization
// helpers shared by the clinic services.
//
// This file implements cache-key pattern matching used by invalidation:
//   - Exact match: "quick_stats" matches only "quick_stats"
//   - Prefix match: "today_appointments_2024-05-10_*" matches every
//     count-suffixed variant of that day's key family
//   - Glob fallback: "monthly_*_2024-05" compiles to a cached regex
//
// Design Notes:
//   - Prefix matching is the hot path: the dashboard's entity-type mapping is
//     expressed entirely in key prefixes
//   - Compiled regexes are cached in a sync.Map to avoid recompilation
//   - Thread-safe; match functions take no locks on the fast paths
package utils

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// globCache caches compiled glob regexes keyed by pattern string.
var globCache sync.Map

// MatchKey reports whether a cache key matches the given pattern.
//
// Pattern syntax:
//   - no "*": exact match
//   - trailing "*": prefix match (fast path)
//   - "*" elsewhere / "?": glob, compiled to a cached regex
func MatchKey(pattern, key string) (bool, error) {
	if pattern == "" {
		return false, fmt.Errorf("pattern cannot be empty")
	}

	if pattern == key {
		return true, nil
	}
	if pattern == "*" {
		return true, nil
	}

	// Prefix fast path: "today_stats_*"
	if strings.HasSuffix(pattern, "*") && !strings.ContainsAny(pattern[:len(pattern)-1], "*?") {
		return strings.HasPrefix(key, pattern[:len(pattern)-1]), nil
	}

	if !strings.ContainsAny(pattern, "*?") {
		return false, nil // exact pattern, already compared above
	}

	re, err := compileGlob(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(key), nil
}

// FilterKeys returns the subset of keys matching pattern, preserving order.
func FilterKeys(pattern string, keys []string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	matched := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := MatchKey(pattern, key)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, key)
		}
	}
	return matched, nil
}

// compileGlob translates a glob pattern to an anchored regex, caching the
// compiled result.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	if cached, ok := globCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch ch := pattern[i]; ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '.', '+', '(', ')', '|', '[', ']', '{', '}', '^', '$', '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	globCache.Store(pattern, re)
	return re, nil
}

// ClearGlobCache drops all compiled glob regexes. Useful in tests.
func ClearGlobCache() {
	globCache.Range(func(key, _ any) bool {
		globCache.Delete(key)
		return true
	})
}
