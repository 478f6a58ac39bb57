package route

import (
	"io"
	"log/slog"
	"net/http"

	"larder/utils"
)

func Health(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := as.RawDb.PingContext(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, "ok"); err != nil {
			slog.Warn("can't write to response", "where", "route/health.go", "err", err)
		}
	})
}
