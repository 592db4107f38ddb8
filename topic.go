package miniac

import "strings"

// maxTopicLength is the maximum allowed length, in octets, of a topic name or filter.
const maxTopicLength = 65536

// parseTopicLevels splits a topic or filter string on '/' into its levels,
// preserving empty levels (so "a//b" has three levels: "a", "", "b").
func parseTopicLevels(s string) []string {
	return strings.Split(s, "/")
}

// isValidTopicName reports whether s is a well-formed topic name: non-empty,
// at most maxTopicLength octets, and free of NUL bytes. No other character
// restrictions apply; a level that happens to equal "+" or "#" is a literal
// topic level here, not a wildcard (those only have special meaning inside
// a topic filter).
func isValidTopicName(s string) bool {
	if s == "" || len(s) > maxTopicLength {
		return false
	}
	if strings.IndexByte(s, 0) >= 0 {
		return false
	}
	return true
}

// isValidTopicFilter reports whether s is a well-formed topic filter: the
// same base constraints as a topic name, plus every level containing '+'
// must equal "+", every level containing '#' must equal "#", there is at
// most one '#', and if present it is the last level.
func isValidTopicFilter(s string) bool {
	if s == "" || len(s) > maxTopicLength {
		return false
	}
	if strings.IndexByte(s, 0) >= 0 {
		return false
	}

	levels := parseTopicLevels(s)
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return false
		}
		if strings.Contains(level, "#") {
			if level != "#" {
				return false
			}
			if i != len(levels)-1 {
				return false
			}
		}
	}
	return true
}

// TopicFilter is a parsed MQTT-style topic filter: a sequence of levels
// where "+" matches exactly one level and a trailing "#" matches any number
// of trailing levels, including none ("a/#" matches "a").
type TopicFilter struct {
	raw                      string
	levels                   []string
	endsWithMultiLevelWildcard bool
}

// parseTopicFilter parses s, which must already have passed isValidTopicFilter.
func parseTopicFilter(s string) *TopicFilter {
	levels := parseTopicLevels(s)
	endsWithHash := len(levels) > 0 && levels[len(levels)-1] == "#"
	return &TopicFilter{raw: s, levels: levels, endsWithMultiLevelWildcard: endsWithHash}
}

// String returns the filter's original string form.
func (f *TopicFilter) String() string { return f.raw }

// IsSimple reports whether the filter contains no wildcard levels.
func (f *TopicFilter) IsSimple() bool {
	for _, level := range f.levels {
		if level == "+" {
			return false
		}
	}
	return !f.endsWithMultiLevelWildcard
}

// Match reports whether the filter matches a concrete topic's levels.
func (f *TopicFilter) Match(topicLevels []string) bool {
	if f.endsWithMultiLevelWildcard {
		fixed := f.levels[:len(f.levels)-1]
		if len(topicLevels) < len(fixed) {
			return false
		}
		for i, lvl := range fixed {
			if lvl != "+" && lvl != topicLevels[i] {
				return false
			}
		}
		return true
	}

	if len(f.levels) != len(topicLevels) {
		return false
	}
	for i, lvl := range f.levels {
		if lvl != "+" && lvl != topicLevels[i] {
			return false
		}
	}
	return true
}

// MatchTopic is a convenience wrapper around Match that parses topic first.
func (f *TopicFilter) MatchTopic(topic string) bool {
	return f.Match(parseTopicLevels(topic))
}

// splitTopicHead splits s at the first '/' into (head, rest). If there is no
// '/', rest is empty and ok is false.
func splitTopicHead(s string) (head, rest string, ok bool) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

// isValidGatewayID reports whether id matches ^[A-Za-z][A-Za-z0-9]*$.
func isValidGatewayID(id string) bool {
	if id == "" {
		return false
	}
	c := id[0]
	if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
		return false
	}
	for i := 1; i < len(id); i++ {
		c := id[i]
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

// isValidDataItemSegment reports whether seg matches ^[.A-Za-z0-9_]+$.
func isValidDataItemSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '.' || c == '_'
		if !ok {
			return false
		}
	}
	return true
}

// isValidDataItemLocalID reports whether localID is one or more segments
// joined by '/', each matching isValidDataItemSegment.
func isValidDataItemLocalID(localID string) bool {
	if localID == "" {
		return false
	}
	for _, seg := range strings.Split(localID, "/") {
		if !isValidDataItemSegment(seg) {
			return false
		}
	}
	return true
}
