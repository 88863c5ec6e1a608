package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"workspace-auth/internal/app"
	"workspace-auth/internal/observability"
)

const bootstrapTimeout = 15 * time.Second

var (
	runtimeMu  sync.Mutex
	apiRuntime *app.Runtime

	buildRuntime = func(ctx context.Context) (*app.Runtime, error) {
		return app.Build(ctx, app.Options{
			LoadDotEnv:    false,
			RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		})
	}
)

// Handler is the serverless entry point. The runtime is built on the first
// request and reused while the instance stays warm. A failed build is retried
// on the next request so a cold database does not wedge the instance.
func Handler(w http.ResponseWriter, r *http.Request) {
	rt, err := currentRuntime()
	if err != nil {
		observability.NewLogger().Error("bootstrap_failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "application bootstrap failed"})
		return
	}

	rt.Handler.ServeHTTP(w, r)
}

func currentRuntime() (*app.Runtime, error) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if apiRuntime != nil {
		return apiRuntime, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	rt, err := buildRuntime(ctx)
	if err != nil {
		return nil, err
	}
	apiRuntime = rt
	return rt, nil
}
