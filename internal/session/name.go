// Package session names recording sessions and tracks the active one.
package session

import (
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wall-clock part of a session name, sortable as text.
const TimestampLayout = "20060102_150405"

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "Recording"

var prefixReplacer = strings.NewReplacer(
	" ", "_",
	":", "_",
	"/", "_",
	"\\", "_",
	".", "_",
)

// SanitizePrefix makes a prefix safe to use as part of a storage key.
func SanitizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultPrefix
	}
	return prefixReplacer.Replace(prefix)
}

// Name returns {prefix}_{YYYYMMDD_HHmmss} for t. When exists reports the name
// as taken, _2, _3 and so on are appended until a free name is found.
// A nil exists accepts the first candidate.
func Name(prefix string, t time.Time, exists func(string) bool) string {
	base := SanitizePrefix(prefix) + "_" + t.Format(TimestampLayout)
	if exists == nil || !exists(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if !exists(candidate) {
			return candidate
		}
	}
}
