package gatewaysvc

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hackstrix/zeusgate/internal/metrics"
	"github.com/hackstrix/zeusgate/internal/provider"
	"github.com/hackstrix/zeusgate/internal/router"
	"github.com/hackstrix/zeusgate/internal/wire"
)

func (f *Facade) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", f.handleWS)
	mux.HandleFunc("/health", f.handleHealth)
	mux.HandleFunc("/status", f.handleStatus)
	mux.HandleFunc("/providers", f.handleProviders)
	mux.HandleFunc("/processes", f.handleProcesses)
	mux.HandleFunc("/logs/", f.handleLogs)
	mux.HandleFunc("/config/", f.handleConfig)
	mux.HandleFunc("/serve/", f.handleServe)
	mux.Handle("/metrics", metrics.Handler())
}

func (f *Facade) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (f *Facade) handleStatus(w http.ResponseWriter, r *http.Request) {
	all := f.deps.Registry.List("")
	workers := make([]wire.WorkerInfo, 0, len(all))
	for _, wk := range all {
		workers = append(workers, router.ToWorkerInfo(wk))
	}
	writeJSON(w, http.StatusOK, wire.StatusPayload{
		Providers: f.deps.Providers,
		Workers:   workers,
		Clients:   f.deps.Hub.ClientCount(),
	})
}

func (f *Facade) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.deps.Providers)
}

func (f *Facade) handleProcesses(w http.ResponseWriter, r *http.Request) {
	prov := r.URL.Query().Get("provider")
	all := f.deps.Registry.List(prov)
	workers := make([]wire.WorkerInfo, 0, len(all))
	for _, wk := range all {
		workers = append(workers, router.ToWorkerInfo(wk))
	}
	writeJSON(w, http.StatusOK, workers)
}

func (f *Facade) handleLogs(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/logs/")
	if id == "" {
		http.Error(w, "worker id required", http.StatusBadRequest)
		return
	}
	tail := 0
	if raw := r.URL.Query().Get("tail"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			tail = n
		}
	}
	logs, err := f.deps.Fleet.Logs(r.Context(), id, tail)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, wire.LogsPayload{ProcessID: id, Logs: logs})
}

// handleConfig serves GET/POST /config/<provider>. POST accepts
// {systemPrompt?, defaultModel?, restart?} and, when restart is true and
// the prompt changed, stops+respawns every affected worker so the new
// prompt takes effect (spec.md §8 scenario 6).
func (f *Facade) handleConfig(w http.ResponseWriter, r *http.Request) {
	prov := strings.TrimPrefix(r.URL.Path, "/config/")
	if prov == "" {
		http.Error(w, "provider required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := f.deps.Config.Get(prov)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPost:
		var body struct {
			SystemPrompt *string `json:"systemPrompt"`
			DefaultModel *string `json:"defaultModel"`
			Restart      bool    `json:"restart"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		affected, err := f.deps.Config.Update(prov, provider.Patch{
			SystemPrompt: body.SystemPrompt,
			DefaultModel: body.DefaultModel,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		var restarted []string
		if body.Restart && len(affected) > 0 {
			restarted = f.restartWorkers(r.Context(), prov, affected)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"affectedWorkerIds":   affected,
			"restartedContainers": restarted,
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// restartWorkers stops each affected worker and spawns a fresh one for
// the same provider, returning the ids that were restarted.
func (f *Facade) restartWorkers(ctx context.Context, prov string, ids []string) []string {
	var restarted []string
	for _, id := range ids {
		sv, ok := f.deps.Fleet.Get(id)
		if !ok {
			continue
		}
		model := sv.Snapshot().Model
		if err := f.deps.Fleet.Stop(ctx, id); err != nil {
			continue
		}
		if _, err := f.deps.Fleet.Spawn(ctx, prov, model, 0); err != nil {
			continue
		}
		restarted = append(restarted, id)
	}
	return restarted
}

// handleServe serves files under WorkspaceRoot by relative path,
// rejecting any resolved path that escapes the root — including via a
// symlink — per spec.md §4.10's path-traversal defense.
func (f *Facade) handleServe(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/serve/")
	root, err := filepath.Abs(f.deps.WorkspaceRoot)
	if err != nil {
		http.Error(w, "workspace misconfigured", http.StatusInternalServerError)
		return
	}
	candidate := filepath.Join(root, rel)
	if !strings.HasPrefix(candidate, root+string(filepath.Separator)) && candidate != root {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if !strings.HasPrefix(resolved, root+string(filepath.Separator)) && resolved != root {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	http.ServeFile(w, r, resolved)
}

// blockPathTraversal rejects requests whose raw path carries a literal
// ".." segment with 403, before they ever reach ServeMux: ServeMux cleans
// the path and issues its own 301 redirect ahead of any handler, which
// would otherwise turn spec.md's `GET /serve/../secret` case into a
// redirect to /secret instead of the mandated forbidden response.
func blockPathTraversal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, seg := range strings.Split(r.URL.Path, "/") {
			if seg == ".." {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
