package urlfilter

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// defaultPorts maps a scheme to the port it implies.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize returns the deduplication key of an absolute URL.
//
// The fragment is dropped, scheme and host are lowercased, the scheme's
// default port is removed, dot segments are resolved, an empty path becomes
// "/" and query parameters are sorted as raw "k=v" strings.
func Normalize(u *url.URL) string {
	n := *u
	n.User = nil
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)

	host := strings.ToLower(n.Hostname())
	port := n.Port()
	if port != "" && port != defaultPorts[n.Scheme] {
		host = joinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	n.Host = host

	p := n.EscapedPath()
	if p == "" {
		p = "/"
	} else {
		trailing := strings.HasSuffix(p, "/")
		p = path.Clean(p)
		if trailing && p != "/" {
			p += "/"
		}
	}
	n.RawPath = ""
	if unescaped, err := url.PathUnescape(p); err == nil {
		n.Path = unescaped
		if n.EscapedPath() != p {
			n.RawPath = p
		}
	} else {
		n.Path = p
	}

	if n.RawQuery != "" {
		params := strings.Split(n.RawQuery, "&")
		sort.Strings(params)
		n.RawQuery = strings.Join(params, "&")
	}
	n.ForceQuery = false

	return n.String()
}

func joinHostPort(host, port string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}

// RequestPath returns the path and query to put in the request line.
func RequestPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
