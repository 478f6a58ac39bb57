package utils

import (
	"database/sql"
	"log/slog"
	"os"
	"sync"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// MetricChans carries latency samples from the hot paths to the
// metric collectors.
type MetricChans struct {
	DatabaseRead  chan float64
	DatabaseWrite chan float64
	CaldavFetch   chan float64
}

type AppState struct {
	Config  *Config
	RawDb   *sql.DB
	BunDB   *bun.DB
	When    *when.Parser
	Sources []Source

	MetricChans *MetricChans

	// raised by whoever wants the app to exit
	AppCloseSignalChan chan os.Signal

	gracefulShutdownMu    sync.Mutex
	gracefulShutdownChans []*chan struct{}
}

func NewAppState() *AppState {
	as := &AppState{}

	// date parser
	as.When = when.New(nil)
	as.When.Add(en.All...)
	as.When.Add(common.All...)

	// env
	as.Config = NewConfig()

	// sources
	var err error
	as.Sources, err = LoadSources(as.Config.GetSourcesFile())
	if err != nil {
		slog.Error("can't load sources", "error", err)
		os.Exit(1)
	}

	// database
	as.RawDb, err = sql.Open(sqliteshim.ShimName, as.Config.GetDatabaseFilePath()+"?mode=rwc")
	if err != nil {
		slog.Error("cannot open sqlite database", "error", err)
		os.Exit(1)
	}
	as.RawDb.SetMaxIdleConns(8)

	as.BunDB = bun.NewDB(as.RawDb, sqlitedialect.New())
	as.BunDB.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.FromEnv("BUNDEBUG"),
	))

	as.MetricChans = &MetricChans{
		DatabaseRead:  make(chan float64),
		DatabaseWrite: make(chan float64),
		CaldavFetch:   make(chan float64),
	}

	as.AppCloseSignalChan = make(chan os.Signal, 1)

	return as
}

// CreateGracefulShutdownChan hands a background worker its own
// shutdown channel; GracefulShutdown closes every channel created
// this way.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	ch := make(chan struct{})
	as.gracefulShutdownMu.Lock()
	as.gracefulShutdownChans = append(as.gracefulShutdownChans, &ch)
	as.gracefulShutdownMu.Unlock()
	return &ch
}

func (as *AppState) GracefulShutdown() {
	as.gracefulShutdownMu.Lock()
	defer as.gracefulShutdownMu.Unlock()
	for _, ch := range as.gracefulShutdownChans {
		close(*ch)
	}
	as.gracefulShutdownChans = nil
}
