package handlers

import (
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

// NewConfigHandler serves the running harvester config as YAML with the session
// cookie redacted. ?section= narrows the output to one top-level block.
func NewConfigHandler(provider ConfigProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := provider.Config().Redacted()

		var out any = cfg
		if section := r.URL.Query().Get("section"); section != "" {
			sections := map[string]any{
				"site":       cfg.Site,
				"refresh":    cfg.Refresh,
				"store":      cfg.Store,
				"monitoring": cfg.Monitoring,
				"logging":    cfg.Logging,
			}
			v, ok := sections[section]
			if !ok {
				writeError(w, http.StatusBadRequest, "unknown config section "+section)
				return
			}
			out = v
		}

		w.Header().Set("Content-Type", "text/yaml")
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		if err := enc.Encode(out); err != nil {
			slog.Error("encoding config", "error", err)
		}
	}
}
