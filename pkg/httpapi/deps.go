// Package httpapi wires the ingest and agents HTTP surfaces described in
// §6: gin routers over the ingestion pipeline, semantic search, RBAC
// authentication, and the workflow engine. Routing and middleware follow
// the gin.Context/gin.H idiom the teacher's pkg/api/handlers.go already
// uses, generalized from its one-session chat API to the full endpoint
// table.
package httpapi

import (
	"time"

	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/auditstream"
	"github.com/analystcopilot/core/pkg/cache"
	"github.com/analystcopilot/core/pkg/export"
	"github.com/analystcopilot/core/pkg/ingest"
	"github.com/analystcopilot/core/pkg/metrics"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/rbac"
	"github.com/analystcopilot/core/pkg/search"
	"github.com/analystcopilot/core/pkg/store"
	"github.com/analystcopilot/core/pkg/workflow"
)

// RateLimit configures the fixed-window limiter applied per identity+route.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimit matches §6's documented default of 120 requests/minute.
func DefaultRateLimit() RateLimit { return RateLimit{Limit: 120, Window: time.Minute} }

// Dependencies collects every collaborator the routers need. Nil fields
// that aren't required by a given deployment (e.g. Stream when the event
// feed is disabled) are tolerated; handlers that need them fail closed.
type Dependencies struct {
	Auth   *rbac.Service
	Tokens *rbac.TokenIssuer
	Cache  *cache.Client

	Jobs   *store.IngestJobRepo
	Chunks *store.ChunkRepo
	Blobs  ingest.BlobWriter

	Search *search.Service
	Export *export.Service

	Workflows *store.WorkflowRepo
	Engine    *workflow.Engine

	AuditChain *audit.Chain
	Stream     *auditstream.ConnectionManager
	Metrics    *metrics.Metrics

	RateLimit RateLimit
	// MaxUploadBytes bounds multipart upload size; 0 falls back to §6's
	// documented 50 MiB default.
	MaxUploadBytes int64
}

func (d *Dependencies) maxUploadBytes() int64 {
	if d.MaxUploadBytes > 0 {
		return d.MaxUploadBytes
	}
	return 50 << 20
}

// identityKey is the gin.Context key the auth middleware stores the
// resolved models.Identity under.
const identityKey = "identity"

func currentIdentity(c ginContextGetter) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}

// ginContextGetter is the minimal surface currentIdentity needs, so it can
// be exercised against a plain map in tests without importing gin there.
type ginContextGetter interface {
	Get(key string) (value any, exists bool)
}
