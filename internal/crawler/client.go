package crawler

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// ErrBindInterface is returned when the bind interface has no usable address.
var ErrBindInterface = errors.New("cannot bind to interface")

// clientConfig is what every per-host client is built from.
type clientConfig struct {
	timeout          time.Duration
	certVerification bool
	caFile           string
	caDir            string
	bindInterface    string
	proxyURL         string
	headers          map[string]string
	cookie           string
}

type clientKey struct {
	ssl  bool
	host string
}

// clientPool keeps one HTTP client per scheme and host. Redirects are never
// followed by the client; the crawler turns them into new records.
type clientPool struct {
	cfg     clientConfig
	roots   *x509.CertPool
	dialer  proxy.ContextDialer
	mu      sync.Mutex
	clients map[clientKey]*http.Client
}

func newClientPool(cfg clientConfig) (*clientPool, error) {
	p := &clientPool{cfg: cfg, clients: make(map[clientKey]*http.Client)}

	if cfg.certVerification && (cfg.caFile != "" || cfg.caDir != "") {
		roots, err := loadRoots(cfg.caFile, cfg.caDir)
		if err != nil {
			return nil, err
		}
		p.roots = roots
	}

	dialer := &net.Dialer{Timeout: cfg.timeout, KeepAlive: 30 * time.Second}
	if cfg.bindInterface != "" {
		ip, err := interfaceAddr(cfg.bindInterface)
		if err != nil {
			return nil, err
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}
	p.dialer = dialer

	if cfg.proxyURL != "" {
		u, err := url.Parse(cfg.proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		d, err := proxy.FromURL(u, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy dialer for %q does not support contexts", u.Scheme)
		}
		p.dialer = cd
	}
	return p, nil
}

// loadRoots reads PEM certificates from file and from every regular file
// in dir.
func loadRoots(file, dir string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}

	paths := []string{}
	if file != "" {
		paths = append(paths, file)
	}
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA directory: %w", err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}

	for _, path := range paths {
		pem, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		// Files without certificates in a CA directory are ignored.
		if !pool.AppendCertsFromPEM(pem) && path == file {
			return nil, fmt.Errorf("no certificates found in %s", path)
		}
	}
	return pool, nil
}

// interfaceAddr accepts an IP address or a network interface name and
// returns the address to bind outgoing connections to.
func interfaceAddr(name string) (net.IP, error) {
	if ip := net.ParseIP(name); ip != nil {
		return ip, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrBindInterface, name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrBindInterface, name, err)
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.To4() != nil {
			return ipNet.IP, nil
		}
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			return ipNet.IP, nil
		}
	}
	return nil, fmt.Errorf("%w %q: no address", ErrBindInterface, name)
}

// get returns the client for scheme and host, creating it on first use.
func (p *clientPool) get(ssl bool, host string) *http.Client {
	key := clientKey{ssl: ssl, host: host}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c
	}
	c := p.newClient()
	p.clients[key] = c
	return c
}

func (p *clientPool) newClient() *http.Client {
	transport := &http.Transport{
		DialContext: p.dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !p.cfg.certVerification, //nolint:gosec // cert_verification is off by default
			RootCAs:            p.roots,
			MinVersion:         tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: p.cfg.timeout,
	}

	var rt http.RoundTripper = transport
	if len(p.cfg.headers) > 0 || p.cfg.cookie != "" {
		rt = &headerInjectingTransport{base: transport, cookie: p.cfg.cookie, headers: p.cfg.headers}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   p.cfg.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (p *clientPool) closeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
}

// headerInjectingTransport adds configured headers and a cookie to every
// request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}

// certificateError extracts a TLS verification failure from a client error.
func certificateError(err error) (string, bool) {
	var verr *tls.CertificateVerificationError
	if errors.As(err, &verr) {
		return verr.Err.Error(), true
	}
	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		return unknown.Error(), true
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return hostname.Error(), true
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return invalid.Error(), true
	}
	return "", false
}

// noReplyMessage turns a transport error into the message stored on a
// record that never got an answer.
func noReplyMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "Could not resolve host: " + dnsErr.Name
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "Could not establish connection"
	}
	return "No reply: " + err.Error()
}
