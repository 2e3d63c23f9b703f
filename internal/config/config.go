package config

import (
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// minStatusTTL is the smallest usable record TTL. etcd counts lease TTLs in
// whole seconds and refuses tiny values, so anything shorter is lifted to
// this floor.
const minStatusTTL = 5 * time.Second

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Namespace string        // key namespace prefix, empty = shared root
	StatusTTL time.Duration // record lease duration (default: 60s, floor: 5s)

	ServiceFile       string        // path to this node's service descriptor (optional, empty = agent mode disabled)
	HeartbeatInterval time.Duration // interval between lease renewals (default: 15s)
	SweepInterval     time.Duration // interval between stale-pointer sweeps (default: 5m)

	// etcd
	EtcdHost           string        // ex: "localhost"
	EtcdPort           int           // ex: 2379
	EtcdDialTimeout    time.Duration // gRPC dial timeout (ex: 5s)
	EtcdConnectTimeout time.Duration // Total time to retry connecting at startup (ex: 30s)
	EtcdRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	EtcdMaxWait        time.Duration // max wait between retries (ex: 10s)
	EtcdStatusTimeout  time.Duration // timeout for each status probe (ex: 2s)
	EtcdOpTimeout      time.Duration // per-request timeout on store calls (ex: 5s)
	EtcdWarnThreshold  int           // warn after this many attempts

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)

	RateBurst     int // token bucket burst for mutating API calls (0 = rate limiting disabled)
	RateRefillMin int // tokens refilled per IP per minute
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("VIGIL_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("VIGIL_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("VIGIL_LOG_LEVEL", "info"),
		PrettyLog: mustBool("VIGIL_PRETTY_LOG", true),

		// Registry
		Namespace: getenv("VIGIL_NAMESPACE", ""),
		StatusTTL: mustDuration("VIGIL_STATUS_TTL", 60*time.Second),

		// Agent mode
		ServiceFile:       getenv("VIGIL_SERVICE_FILE", ""), // Optional, empty = no record of our own
		HeartbeatInterval: mustDuration("VIGIL_HEARTBEAT_INTERVAL", 15*time.Second),
		SweepInterval:     mustDuration("VIGIL_SWEEP_INTERVAL", 5*time.Minute),

		// etcd settings
		EtcdHost:           getenv("VIGIL_ETCD_HOST", "localhost"),
		EtcdPort:           getenvInt("VIGIL_ETCD_PORT", 2379),
		EtcdDialTimeout:    mustDuration("VIGIL_ETCD_DIAL_TIMEOUT", 5*time.Second),
		EtcdConnectTimeout: mustDuration("VIGIL_ETCD_CONNECT_TIMEOUT", 30*time.Second),
		EtcdRetryInterval:  mustDuration("VIGIL_ETCD_RETRY_INTERVAL", 2*time.Second),
		EtcdMaxWait:        mustDuration("VIGIL_ETCD_MAX_WAIT", 10*time.Second),
		EtcdStatusTimeout:  mustDuration("VIGIL_ETCD_STATUS_TIMEOUT", 2*time.Second),
		EtcdOpTimeout:      mustDuration("VIGIL_ETCD_OP_TIMEOUT", 5*time.Second),
		EtcdWarnThreshold:  getenvInt("VIGIL_ETCD_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: getenvSlice("VIGIL_ALLOWED_HOSTS"),
		AllowedCIDRS: parseAllowedIPs(getenv("VIGIL_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("VIGIL_TRUST_PROXY", false),

		// Rate limiting for mutating API calls
		RateBurst:     getenvInt("VIGIL_RATE_BURST", 0),
		RateRefillMin: getenvInt("VIGIL_RATE_REFILL_PER_MIN", 60),
	}

	// Leases shorter than the floor would expire before a heartbeat can
	// land; lift them silently the way the store itself would.
	if cfg.StatusTTL < minStatusTTL {
		cfg.StatusTTL = minStatusTTL
	}

	// Log config only in debug mode
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", *cfg)
	}

	return cfg
}

// EtcdEndpoint returns the etcd address in host:port form.
func (c *Config) EtcdEndpoint() string {
	return net.JoinHostPort(c.EtcdHost, strconv.Itoa(c.EtcdPort))
}

// AgentEnabled reports whether this process should register and heartbeat
// its own service record.
func (c *Config) AgentEnabled() bool {
	return c.ServiceFile != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvSlice(key string) []string {
	return splitAndTrim(os.Getenv(key))
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
