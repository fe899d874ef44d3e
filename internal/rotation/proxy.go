package rotation

import (
	"bufio"
	"fmt"
	mathrand "math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
)

// ProxyManager rotates through an ordered list of proxy endpoints. Rotation
// is failure-triggered, not time-based: ReportFailure counts strikes per
// proxy and rotates at the configured threshold, ReportSuccess clears the
// current proxy's counter.
type ProxyManager struct {
	enabled     bool
	proxies     []string
	failures    []int
	current     int
	strategy    string
	maxFailures int

	rnd *mathrand.Rand
	mu  sync.Mutex
	log *logger.Logger
}

// NewProxyManager builds a manager from the proxy sub-config. A disabled or
// empty configuration yields a manager whose Current() is always empty.
func NewProxyManager(cfg config.ProxyConfig) (*ProxyManager, error) {
	pm := &ProxyManager{
		enabled:     cfg.Enabled,
		strategy:    cfg.RotationStrategy,
		maxFailures: cfg.MaxFailuresBeforeRotate,
		rnd:         mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		log:         logger.Default,
	}
	if pm.strategy == "" {
		pm.strategy = "round_robin"
	}
	if pm.maxFailures <= 0 {
		pm.maxFailures = 3
	}

	if !cfg.Enabled {
		return pm, nil
	}

	proxies, err := loadProxies(cfg)
	if err != nil {
		return nil, err
	}
	pm.proxies = proxies
	pm.failures = make([]int, len(proxies))

	logger.Info("Proxy manager initialized with %d proxies (strategy: %s)",
		len(proxies), pm.strategy)
	return pm, nil
}

// loadProxies reads proxy endpoints from the configured source
func loadProxies(cfg config.ProxyConfig) ([]string, error) {
	switch cfg.Source {
	case "env":
		envVar := cfg.EnvVar
		if envVar == "" {
			envVar = "GROCERY_PROXIES"
		}
		raw := os.Getenv(envVar)
		if raw == "" {
			return nil, nil
		}
		var proxies []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				proxies = append(proxies, p)
			}
		}
		return proxies, nil

	case "file":
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, scraperrors.NewConfiguration(
				fmt.Sprintf("failed to open proxy file %q", cfg.File), err)
		}
		defer f.Close()

		var proxies []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			proxies = append(proxies, line)
		}
		return proxies, scanner.Err()

	case "list", "":
		return cfg.List, nil

	default:
		return nil, scraperrors.NewConfiguration(
			fmt.Sprintf("unknown proxy source %q", cfg.Source), nil)
	}
}

// Current returns the active proxy endpoint, or empty when disabled or no
// proxies are loaded
func (pm *ProxyManager) Current() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.currentLocked()
}

func (pm *ProxyManager) currentLocked() string {
	if !pm.enabled || len(pm.proxies) == 0 {
		return ""
	}
	return pm.proxies[pm.current]
}

// Rotate advances to the next proxy: round-robin, or a different random
// index (never the current one when more than one is available)
func (pm *ProxyManager) Rotate() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.rotateLocked()
}

func (pm *ProxyManager) rotateLocked() string {
	if len(pm.proxies) == 0 {
		return ""
	}
	if len(pm.proxies) == 1 {
		return pm.proxies[0]
	}

	old := pm.current
	if pm.strategy == "random" {
		next := pm.rnd.Intn(len(pm.proxies) - 1)
		if next >= old {
			next++
		}
		pm.current = next
	} else {
		pm.current = (pm.current + 1) % len(pm.proxies)
	}

	pm.failures[pm.current] = 0

	if pm.log != nil {
		pm.log.Debug().
			Int("from", old).
			Int("to", pm.current).
			Msg("Rotated proxy")
	}
	return pm.proxies[pm.current]
}

// ReportFailure adds a strike against the current proxy and rotates once
// the failure threshold is reached
func (pm *ProxyManager) ReportFailure() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.enabled || len(pm.proxies) == 0 {
		return
	}

	pm.failures[pm.current]++
	if pm.failures[pm.current] >= pm.maxFailures {
		logger.Warn("Proxy %s reached %d failures, rotating",
			pm.proxies[pm.current], pm.failures[pm.current])
		pm.rotateLocked()
	}
}

// ReportSuccess clears the current proxy's failure counter
func (pm *ProxyManager) ReportSuccess() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.enabled || len(pm.proxies) == 0 {
		return
	}
	pm.failures[pm.current] = 0
}

// Stats returns current proxy statistics for logging
func (pm *ProxyManager) Stats() map[string]interface{} {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	stats := map[string]interface{}{
		"enabled":       pm.enabled,
		"total_proxies": len(pm.proxies),
		"strategy":      pm.strategy,
	}
	if current := pm.currentLocked(); current != "" {
		stats["current"] = current
		stats["current_failures"] = pm.failures[pm.current]
	}
	return stats
}
