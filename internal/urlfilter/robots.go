package urlfilter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// maxRobotsSize caps how much of robots.txt is read.
const maxRobotsSize = 512 * 1024

// Robots answers whether the crawl's user agent may fetch a path.
type Robots struct {
	data  *robotstxt.RobotsData
	group *robotstxt.Group
	agent string
}

// ParseRobots builds a policy from a robots.txt response. Following the
// robots.txt conventions a 4xx status allows everything and a 5xx
// status disallows everything.
func ParseRobots(status int, body []byte, agent string) (*Robots, error) {
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	return &Robots{data: data, group: data.FindGroup(agent), agent: agent}, nil
}

// FetchRobots downloads <scheme>://<host>/robots.txt of root with client.
func FetchRobots(ctx context.Context, client *http.Client, root *url.URL, agent string) (*Robots, error) {
	robotsURL := url.URL{Scheme: root.Scheme, Host: root.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", agent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read robots.txt: %w", err)
	}
	return ParseRobots(resp.StatusCode, body, agent)
}

// Allowed reports whether u may be fetched. A nil policy allows everything.
func (r *Robots) Allowed(u *url.URL) bool {
	if r == nil || r.data == nil {
		return true
	}
	return r.data.TestAgent(RequestPath(u), r.agent)
}

// CrawlDelay returns the Crawl-delay for the agent, 0 when none is set.
func (r *Robots) CrawlDelay() time.Duration {
	if r == nil || r.group == nil {
		return 0
	}
	return r.group.CrawlDelay
}
