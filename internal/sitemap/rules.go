package sitemap

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidTagRule is returned for an xml_tag line that is not
// "<tag> <regex> <value>" or "<tag> default <value>".
var ErrInvalidTagRule = errors.New("invalid xml_tag rule")

// Pattern sets a tag to Value for URLs matching Regexp.
type Pattern struct {
	Regexp *regexp.Regexp
	Value  string
}

// TagRule adds the element Name to every <url> entry. The value is Default
// unless a pattern matches the URL; the last matching pattern wins.
type TagRule struct {
	Name     string
	Default  string
	Patterns []Pattern
}

// Value returns the tag value for loc.
func (r TagRule) Value(loc string) string {
	v := r.Default
	for _, p := range r.Patterns {
		if p.Regexp.MatchString(loc) {
			v = p.Value
		}
	}
	return v
}

// ParseTagRules parses xml_tag lines. Lines naming the same tag are merged
// into one rule, and rules keep the order their tag first appeared in.
// Patterns match case-insensitively.
func ParseTagRules(lines []string) ([]TagRule, error) {
	var rules []TagRule
	index := make(map[string]int)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTagRule, line)
		}
		name, match, value := fields[0], fields[1], fields[2]

		i, ok := index[name]
		if !ok {
			i = len(rules)
			index[name] = i
			rules = append(rules, TagRule{Name: name})
		}
		if match == "default" {
			rules[i].Default = value
			continue
		}
		re, err := regexp.Compile("(?i)" + match)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTagRule, line, err)
		}
		rules[i].Patterns = append(rules[i].Patterns, Pattern{Regexp: re, Value: value})
	}
	return rules, nil
}
