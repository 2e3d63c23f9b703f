package deps

import (
	"time"

	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	TimeNow          func() time.Time   // for testing, defaults to time.Now
	AllowedHosts     []string           // Host headers allowed to access the server
	AllowedCIDRS     []string           // IPs allowed to access internal endpoints
	TrustProxy       bool               // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Registry         *registry.Registry // liveness registry backing the API
	Store            registry.Store     // raw store handle, for readiness probes
	Keyspace         registry.Keyspace  // key layout, shared with the registry
	Codec            registry.Codec     // payload codec, for decoding watch events
	AgentID          string             // record id of the built-in agent, empty when disabled
	HeartbeatTrigger chan struct{}      // channel to trigger a manual heartbeat (nil if agent disabled)
	RateBurst        int                // rate limit burst for mutating endpoints, 0 disables
	RateRefillMin    int                // rate limit refill per IP per minute
}
