package log

import (
	"net/url"
	"regexp"
	"strings"
)

// Redacted replaces every secret in log output.
const Redacted = "***REDACTED***"

// secretKeyParts are fragments of attribute keys whose values are never
// logged, whatever they contain. Matching is case-insensitive.
var secretKeyParts = []string{
	"auth", "cookie", "passw", "secret", "token",
	"credential", "private", "session", "api_key", "apikey", "api-key",
}

// secretParams are query parameters whose values are replaced inside URLs.
// Crawled sites often put session identifiers and signed tokens there.
var secretParams = map[string]bool{
	"access_token": true,
	"api_key":      true,
	"apikey":       true,
	"auth":         true,
	"jsessionid":   true,
	"key":          true,
	"password":     true,
	"phpsessid":    true,
	"sid":          true,
	"session":      true,
	"sessionid":    true,
	"sig":          true,
	"signature":    true,
	"token":        true,
}

var secretValues = []*regexp.Regexp{
	// Authorization header values.
	regexp.MustCompile(`(?i)^(bearer|basic|digest)\s+\S+`),
	// JSON web tokens.
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)-----BEGIN[A-Z ]*(PRIVATE|SECRET) KEY-----`),
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func isSecretValue(value string) bool {
	for _, re := range secretValues {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// redactURL hides the userinfo and the secret query parameters of an
// absolute URL. It reports false when value is not such a URL or has
// nothing to hide.
func redactURL(value string) (string, bool) {
	if !strings.Contains(value, "://") {
		return "", false
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return "", false
	}
	query, queryChanged := redactQuery(u.RawQuery)
	hasUser := u.User != nil
	if !hasUser && !queryChanged {
		return "", false
	}

	// RawQuery is written verbatim, so the marker is not escaped.
	u.RawQuery = query
	u.User = nil
	out := u.String()
	if hasUser {
		prefix := u.Scheme + "://"
		out = prefix + Redacted + "@" + strings.TrimPrefix(out, prefix)
	}
	return out, true
}

func redactQuery(raw string) (string, bool) {
	if raw == "" {
		return raw, false
	}
	params := strings.Split(raw, "&")
	changed := false
	for i, p := range params {
		name, _, ok := strings.Cut(p, "=")
		if ok && secretParams[strings.ToLower(name)] {
			params[i] = name + "=" + Redacted
			changed = true
		}
	}
	return strings.Join(params, "&"), changed
}
