// Package httpapi exposes the orchestrator's REST surface (§6):
// catalog, credentials, keychain, execution, worker-pool, and variable
// endpoints, plus the wire-level claim/fetch-command/event-emission
// endpoints the worker runtime drives over HTTP. Routing follows the
// teacher's plain http.ServeMux + resource-path-splitting idiom
// (internal/app/httpapi/handler.go) rather than chi, since the
// teacher's own handler package never imports chi despite it being
// present in go.mod.
package httpapi

import (
	"net/http"
	"time"

	"github.com/noetl/noetl/internal/catalog"
	"github.com/noetl/noetl/internal/claim"
	"github.com/noetl/noetl/internal/credential"
	"github.com/noetl/noetl/internal/event"
	"github.com/noetl/noetl/internal/execution"
	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/orchestrator"
	"github.com/noetl/noetl/internal/registry"
	"github.com/noetl/noetl/internal/tool"
)

// Deps bundles every service the REST surface dispatches into.
// NewHandler mounts every route whether or not its dependency is set.
// Only Tools (/api/runtimes) and Orchestrator (event emission) are
// checked for nil; the other handlers call their dependency directly.
type Deps struct {
	Catalog      *catalog.Service
	Credentials  *credential.Service
	Keychain     *keychain.Service
	Executions   *execution.Service
	Events       event.Store
	Claimer      *claim.Claimer
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Tools        *tool.Registry

	// Auth, when non-nil, requires a bearer token validated by
	// Validate for every non-public path.
	Auth JWTValidator
	// AuthSecret and AuthPassword back /api/auth/login (the `noetl auth
	// login` CLI command): a request presenting AuthPassword gets back
	// a token IssueToken signs with AuthSecret. Login is disabled
	// (404) when either is empty, matching Auth's "nil validator means
	// no auth configured" stance.
	AuthSecret   string
	AuthPassword string
	AuthTokenTTL time.Duration
	// BusSubject is the default subject workers were told to
	// subscribe to; surfaced by /api/runtimes for discovery.
	BusSubject string
}

// NewHandler builds the full REST mux over deps.
func NewHandler(deps Deps) http.Handler {
	h := &handler{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/api/auth/login", h.authLogin)

	mux.HandleFunc("/api/catalog/register", h.catalogRegister)
	mux.HandleFunc("/api/catalog/list", h.catalogList)
	mux.HandleFunc("/api/catalog/resource", h.catalogResource)

	mux.HandleFunc("/api/credentials", h.credentials)
	mux.HandleFunc("/api/credentials/", h.credentialResource)

	mux.HandleFunc("/api/keychain/catalog/", h.keychainByCatalog)
	mux.HandleFunc("/api/keychain/", h.keychainResource)

	mux.HandleFunc("/api/run/playbook", h.runPlaybook)
	mux.HandleFunc("/api/executions", h.executionsList)
	mux.HandleFunc("/api/executions/", h.executionResource)

	mux.HandleFunc("/api/worker/pool/register", h.workerRegister)
	mux.HandleFunc("/api/worker/pool/deregister", h.workerDeregister)
	mux.HandleFunc("/api/worker/pool/heartbeat", h.workerHeartbeat)
	mux.HandleFunc("/api/worker/pools", h.workerPools)
	mux.HandleFunc("/api/runtimes", h.runtimes)

	mux.HandleFunc("/api/vars/", h.vars)

	mux.HandleFunc("/api/commands/claim", h.commandsClaim)
	mux.HandleFunc("/api/commands/poll", h.commandsPoll)
	mux.HandleFunc("/api/commands/by-event/", h.commandByEvent)

	return wrapWithAuth(mux, h.deps.Auth)
}

type handler struct {
	deps Deps
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
