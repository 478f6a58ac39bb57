package metric

import (
	"log/slog"
	"time"

	"larder/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func databaseEmptyRead(as *utils.AppState, tickerInterval *time.Duration) {
	databaseEmptyRead := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "larder_database_empty_read_microsec",
		Help: "The latency of an empty database read in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseEmptyRead); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register larder_database_empty_read_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("larder_database_empty_read_microsec metric registered")
		databaseEmptyRead.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(*tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseEmptyRead) {
				case true:
					slog.Debug("larder_database_empty_read_microsec metric unregistered")
				case false:
					slog.Warn("larder_database_empty_read_microsec metric not registered")
				}
				return
			case <-ticker.C:
				latency, err := database(as)
				if err != nil {
					slog.Error("can't get database latency", "error", err)
					continue
				}
				databaseEmptyRead.Set(float64(latency.Microseconds()))
			}
		}
	}()
}

func databaseRead(as *utils.AppState, clearTickerInterval *time.Duration) {
	databaseRead := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "larder_database_read_microsec",
		Help: "The latency of a database read in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseRead); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register larder_database_read_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("larder_database_read_microsec metric registered")
		databaseRead.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseRead) {
				case true:
					slog.Debug("larder_database_read_microsec metric unregistered")
				case false:
					slog.Warn("larder_database_read_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.DatabaseRead:
				databaseRead.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				databaseRead.Set(0)
			}
		}
	}()
}

func databaseWrite(as *utils.AppState, clearTickerInterval *time.Duration) {
	databaseWrite := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "larder_database_write_microsec",
		Help: "The latency of a database write in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseWrite); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register larder_database_write_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("larder_database_write_microsec metric registered")
		databaseWrite.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseWrite) {
				case true:
					slog.Debug("larder_database_write_microsec metric unregistered")
				case false:
					slog.Warn("larder_database_write_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.DatabaseWrite:
				databaseWrite.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				databaseWrite.Set(0)
			}
		}
	}()
}

func caldavFetch(as *utils.AppState, clearTickerInterval *time.Duration) {
	caldavFetch := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "larder_caldav_fetch_microsec",
		Help: "The latency of one CalDAV collection fetch in microseconds",
	})
	good := true
	if err := prometheus.Register(caldavFetch); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register larder_caldav_fetch_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("larder_caldav_fetch_microsec metric registered")
		caldavFetch.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(caldavFetch) {
				case true:
					slog.Debug("larder_caldav_fetch_microsec metric unregistered")
				case false:
					slog.Warn("larder_caldav_fetch_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.CaldavFetch:
				caldavFetch.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				caldavFetch.Set(0)
			}
		}
	}()
}

var itemsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "larder_items_parsed_total",
	Help: "Parsed calendar objects by kind and outcome",
}, []string{"kind", "outcome"})

// CountParsed records one parse attempt.
func CountParsed(kind, outcome string) {
	itemsParsed.WithLabelValues(kind, outcome).Inc()
}

func Init(as *utils.AppState) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	databaseEmptyRead(as, &tickerInterval)
	databaseRead(as, &clearTickerInterval)
	databaseWrite(as, &clearTickerInterval)
	caldavFetch(as, &clearTickerInterval)
}
