package logging

import (
	"regexp"
	"strings"
)

// LoggerPatternConfig sets the level of every logger whose dotted name matches Pattern. A `*`
// segment matches any run of characters, including further dots.
type LoggerPatternConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

// e.g. "capture", "frame-source" or "replay_2".
var loggerNameSegment = regexp.MustCompile(`^[a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*$`)

func validatePattern(pattern string) bool {
	for _, segment := range strings.Split(pattern, ".") {
		if segment != "*" && !loggerNameSegment.MatchString(segment) {
			return false
		}
	}
	return true
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	segments := strings.Split(pattern, ".")
	for i, segment := range segments {
		if segment == "*" {
			segments[i] = ".*"
		} else {
			segments[i] = regexp.QuoteMeta(segment)
		}
	}
	return regexp.Compile("^" + strings.Join(segments, `\.`) + "$")
}
