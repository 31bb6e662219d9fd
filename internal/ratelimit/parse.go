package ratelimit

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedReset is the reset time extracted from a rate-limit message, along
// with the timezone name it was expressed in.
type ParsedReset struct {
	ResetTime time.Time
	Timezone  string
}

// IsRateLimitMessage reports whether msg looks like an agent-surfaced
// rate-limit notice rather than an ordinary error.
func IsRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "hit your limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "resets")
}

// resetPatterns matches the reset-time clause of messages like
// "You've hit your limit · resets 6am (Europe/Podgorica)",
// "... resets 2:30pm (UTC)", or "... resets 14:30 (UTC)".
var resetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`resets\s+(\d{1,2})(am|pm)\s+\(([^)]+)\)`),
	regexp.MustCompile(`resets\s+(\d{1,2}):(\d{2})(am|pm)\s+\(([^)]+)\)`),
	regexp.MustCompile(`resets\s+(\d{1,2}):(\d{2})\s+\(([^)]+)\)`),
}

// ParseResetTime extracts the reset time a rate-limit message names. Returns
// false if msg doesn't look like a rate-limit message or names no parseable
// reset clause.
func ParseResetTime(msg string) (ParsedReset, bool) {
	if !IsRateLimitMessage(msg) {
		return ParsedReset{}, false
	}

	for i, pattern := range resetPatterns {
		m := pattern.FindStringSubmatch(msg)
		if m == nil {
			continue
		}

		var hour, minute int
		var ampm, tz string
		switch i {
		case 0:
			hour, _ = strconv.Atoi(m[1])
			ampm = strings.ToLower(m[2])
			tz = m[3]
		case 1:
			hour, _ = strconv.Atoi(m[1])
			minute, _ = strconv.Atoi(m[2])
			ampm = strings.ToLower(m[3])
			tz = m[4]
		case 2:
			hour, _ = strconv.Atoi(m[1])
			minute, _ = strconv.Atoi(m[2])
			tz = m[3]
		}

		if ampm == "pm" && hour != 12 {
			hour += 12
		} else if ampm == "am" && hour == 12 {
			hour = 0
		}

		loc, err := time.LoadLocation(tz)
		if err != nil {
			loc = time.Local
		}

		now := time.Now().In(loc)
		resetTime := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if resetTime.Before(now) {
			resetTime = resetTime.Add(24 * time.Hour)
		}

		return ParsedReset{ResetTime: resetTime, Timezone: tz}, true
	}

	return ParsedReset{}, false
}
