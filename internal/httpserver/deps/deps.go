package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/x402hub/paygate/internal/forwarder"
	"github.com/x402hub/paygate/internal/gate"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/recorder"
	"github.com/x402hub/paygate/internal/scheduler"
	"github.com/x402hub/paygate/internal/sources/patterns"
	"github.com/x402hub/paygate/internal/store/postgres"
	"github.com/x402hub/paygate/internal/tenant"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	PlatformHosts []string // Host headers allowed to reach the management API
	AllowedCIDRS  []string // IPs allowed to access management/infra endpoints
	TrustProxy    bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)

	RedisClient *redis.Client   // Redis client connection, for readiness checks
	PG          *postgres.Store // Durable tenant/route/usage store
	Resolver    *tenant.Resolver
	Gate        *gate.Gate
	Forwarder   *forwarder.Forwarder
	Recorder    recorder.Recorder

	// Single-tenant fallback, used when a request carries no resolvable
	// subdomain or when no database is wired.
	Patterns       *patterns.Set               // file-based protected rules
	Reloader       *scheduler.PatternsReloader // manual reload trigger, nil when no patterns file
	LocalSuffixes  []string      // host suffixes treated as local/dev
	PayTo          string
	Network        string
	FacilitatorURL string
	JWTSecret      string
	OriginURL      string
	OriginService  string
}
