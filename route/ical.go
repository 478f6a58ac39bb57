package route

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"larder/ical"
	"larder/storage"
	"larder/utils"
)

func Ical(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /ical/{uid}", func(w http.ResponseWriter, r *http.Request) {
		uid := r.PathValue("uid")

		readStart := time.Now()
		itemRow := new(storage.Item)
		if err := as.BunDB.NewSelect().
			Model(itemRow).
			Where("uid = ?", uid).
			Scan(r.Context()); err != nil {
			http.Error(w, "item not found", http.StatusNotFound)
			return
		}
		if as.MetricChans != nil {
			select {
			case as.MetricChans.DatabaseRead <- float64(time.Since(readStart).Microseconds()):
			default:
			}
		}

		// round-trip through the typed model instead of dumping the
		// stored text, so the response is always a well-formed
		// single-item document
		parsed, err := itemRow.ToItem()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, ical.Serialize(parsed)); err != nil {
			slog.Warn("can't write to response", "where", "route/ical.go", "err", err)
		}
	})
}
