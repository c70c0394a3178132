// Package health serves the liveness and readiness probes of the
// operational HTTP listener.
//
//   - /healthz answers 200 whenever the process can serve HTTP, and
//     reports the running version.
//   - /readyz runs every registered [Check] and answers 503 if any of
//     them fails, with a per-check breakdown in the body.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness check.
const probeTimeout = 5 * time.Second

// Check is a named readiness probe. Probe returns nil while the dependency
// is usable and must respect context cancellation.
type Check struct {
	// Name keys the check in the /readyz response, e.g. "discord" or
	// "ffmpeg".
	Name string

	Probe func(ctx context.Context) error
}

// Handler answers the /healthz and /readyz endpoints. The check list is
// fixed at construction; Handler itself is stateless and safe for
// concurrent use.
type Handler struct {
	version string
	checks  []Check
}

// New creates a Handler reporting version on /healthz and running checks,
// in order, on each /readyz request.
func New(version string, checks ...Check) *Handler {
	return &Handler{version: version, checks: append([]Check(nil), checks...)}
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	type report struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}

	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			rep.Checks[c.Name] = "ok"
		}
	}

	respond(w, code, rep)
}

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
