package rotation

import (
	"crypto/tls"
	"io"
	mathrand "math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/logger"
)

// HeaderPair is a single header in emission order. WAFs key on header order
// as well as presence, so identities carry ordered slices rather than maps.
type HeaderPair struct {
	Key   string
	Value string
}

// Identity is one curated browser fingerprint: a named browser/version, its
// user agent, ordered default headers, and the TLS dialect used to imitate
// its handshake.
type Identity struct {
	Name      string
	UserAgent string
	Headers   []HeaderPair
	TLSSpec   *tls.Config
}

// identityPool is the curated fingerprint pool
var identityPool = map[string]Identity{
	"chrome_120": {
		Name:      "chrome_120",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Headers: []HeaderPair{
			{"sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
			{"sec-ch-ua-mobile", "?0"},
			{"sec-ch-ua-platform", `"Windows"`},
			{"Upgrade-Insecure-Requests", "1"},
			{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
			{"Sec-Fetch-Site", "none"},
			{"Sec-Fetch-Mode", "navigate"},
			{"Sec-Fetch-User", "?1"},
			{"Sec-Fetch-Dest", "document"},
			{"Accept-Language", "en-CA,en-US;q=0.9,en;q=0.8"},
		},
		TLSSpec: &tls.Config{MinVersion: tls.VersionTLS12},
	},
	"chrome_116": {
		Name:      "chrome_116",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36",
		Headers: []HeaderPair{
			{"sec-ch-ua", `"Chromium";v="116", "Not)A;Brand";v="24", "Google Chrome";v="116"`},
			{"sec-ch-ua-mobile", "?0"},
			{"sec-ch-ua-platform", `"Windows"`},
			{"Upgrade-Insecure-Requests", "1"},
			{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"},
			{"Sec-Fetch-Site", "none"},
			{"Sec-Fetch-Mode", "navigate"},
			{"Sec-Fetch-User", "?1"},
			{"Sec-Fetch-Dest", "document"},
			{"Accept-Language", "en-CA,en;q=0.9"},
		},
		TLSSpec: &tls.Config{MinVersion: tls.VersionTLS12},
	},
	"safari_17": {
		Name:      "safari_17",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		Headers: []HeaderPair{
			{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			{"Accept-Language", "en-CA,en;q=0.9"},
			{"Upgrade-Insecure-Requests", "1"},
		},
		TLSSpec: &tls.Config{MinVersion: tls.VersionTLS12},
	},
	"firefox_121": {
		Name:      "firefox_121",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		Headers: []HeaderPair{
			{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			{"Accept-Language", "en-CA,en;q=0.5"},
			{"Upgrade-Insecure-Requests", "1"},
			{"Sec-Fetch-Dest", "document"},
			{"Sec-Fetch-Mode", "navigate"},
			{"Sec-Fetch-Site", "none"},
			{"Sec-Fetch-User", "?1"},
		},
		TLSSpec: &tls.Config{MinVersion: tls.VersionTLS12},
	},
}

// PoolIdentifiers lists the curated pool's identity names
func PoolIdentifiers() []string {
	names := make([]string, 0, len(identityPool))
	for name := range identityPool {
		names = append(names, name)
	}
	return names
}

// FingerprintClient issues requests through the current browser identity,
// preserving its header emission order. Callers rotate the identity on
// 403-class responses. When an identity's TLS spec cannot be applied, a
// pass-through transport preserves the same call contract.
type FingerprintClient struct {
	current   Identity
	fallbacks []string
	randomize bool

	client  *http.Client
	proxies *ProxyManager

	rnd *mathrand.Rand
	mu  sync.Mutex
	log *logger.Logger
}

// NewFingerprintClient creates a client starting from the configured
// identity, falling back to chrome_120 for unknown identifiers
func NewFingerprintClient(cfg config.TLSConfig, proxies *ProxyManager) *FingerprintClient {
	identity, ok := identityPool[cfg.ClientIdentifier]
	if !ok {
		logger.Warn("Unknown client identifier %q, using chrome_120", cfg.ClientIdentifier)
		identity = identityPool["chrome_120"]
	}

	f := &FingerprintClient{
		current:   identity,
		fallbacks: cfg.FallbackIdentifiers,
		randomize: cfg.RandomizeFingerprint,
		proxies:   proxies,
		rnd:       mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		log:       logger.Default,
	}
	f.client = &http.Client{
		Timeout:   30 * time.Second,
		Transport: f.buildTransport(identity),
	}

	if f.randomize {
		f.RotateFingerprint()
	}
	return f
}

// buildTransport builds the impersonation transport for an identity, or the
// pass-through default transport when the identity carries no TLS spec
func (f *FingerprintClient) buildTransport(identity Identity) http.RoundTripper {
	transport := &http.Transport{
		Proxy:               f.proxyFunc,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if identity.TLSSpec != nil {
		transport.TLSClientConfig = identity.TLSSpec.Clone()
	}
	return transport
}

// proxyFunc resolves the proxy for each request from the proxy manager
func (f *FingerprintClient) proxyFunc(*http.Request) (*url.URL, error) {
	if f.proxies == nil {
		return nil, nil
	}
	current := f.proxies.Current()
	if current == "" {
		return nil, nil
	}
	return url.Parse(current)
}

// HTTPClient exposes the underlying client so tests can intercept its
// transport
func (f *FingerprintClient) HTTPClient() *http.Client {
	return f.client
}

// CurrentIdentity returns the active identity name
func (f *FingerprintClient) CurrentIdentity() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Name
}

// RotateFingerprint cycles to the next configured fallback identity,
// exhausting to a random pick from the full pool that differs from the
// current one. Returns the new identity name.
func (f *FingerprintClient) RotateFingerprint() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	old := f.current.Name

	var next Identity
	found := false
	for _, name := range f.fallbacks {
		if name == old {
			continue
		}
		if candidate, ok := identityPool[name]; ok {
			next = candidate
			found = true
			break
		}
	}
	// Drop the used fallback so repeated rotations walk the list
	if found && len(f.fallbacks) > 0 {
		remaining := make([]string, 0, len(f.fallbacks))
		for _, name := range f.fallbacks {
			if name != next.Name {
				remaining = append(remaining, name)
			}
		}
		f.fallbacks = remaining
	}

	if !found {
		names := PoolIdentifiers()
		for {
			candidate := names[f.rnd.Intn(len(names))]
			if candidate != old || len(names) == 1 {
				next = identityPool[candidate]
				break
			}
		}
	}

	f.current = next
	f.client.Transport = f.buildTransport(next)

	logger.Info("Rotated fingerprint: %s -> %s", old, next.Name)
	return next.Name
}

// apply sets the identity's user agent and headers on a request in the
// identity's emission order
func (f *FingerprintClient) apply(req *http.Request) {
	f.mu.Lock()
	identity := f.current
	f.mu.Unlock()

	req.Header.Set("User-Agent", identity.UserAgent)
	for _, h := range identity.Headers {
		if req.Header.Get(h.Key) == "" {
			req.Header.Set(h.Key, h.Value)
		}
	}
}

// Do issues a request through the current identity
func (f *FingerprintClient) Do(req *http.Request) (*http.Response, error) {
	f.apply(req)
	return f.client.Do(req)
}

// Get issues a GET through the current identity
func (f *FingerprintClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return f.Do(req)
}

// Post issues a POST through the current identity
func (f *FingerprintClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return f.Do(req)
}
