// Package scheduler periodically re-imports the configured calendar
// exports and keeps the latest outcome per source.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"rehabcal/internal/config"
	"rehabcal/internal/fetch"
	"rehabcal/internal/importer"
	"rehabcal/internal/journal"
	appLog "rehabcal/internal/log"
)

// Fetcher is the part of *fetch.Fetcher the scheduler needs.
type Fetcher interface {
	FetchOne(ctx context.Context, src fetch.Source) (fetch.Result, error)
}

// Recorder stores import history; *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Sink receives every successful import. It is where records are handed to
// the event store; the scheduler does not persist events itself.
type Sink interface {
	Accept(ctx context.Context, sourceID string, rep importer.Report) error
}

// SourceStatus is the latest outcome for one source.
type SourceStatus struct {
	SourceID  string           `json:"sourceId"`
	Format    string           `json:"format"`
	Report    *importer.Report `json:"report,omitempty"`
	Summary   string           `json:"summary,omitempty"`
	Error     string           `json:"error,omitempty"`
	FromCache bool             `json:"fromCache"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Scheduler runs imports on a cron schedule and on demand.
type Scheduler struct {
	sources  []config.SourceConfig
	spec     string
	fetcher  Fetcher
	recorder Recorder
	sink     Sink
	engine   importer.Engine

	// runMu serializes runs so a manual refresh never overlaps a cron tick.
	runMu sync.Mutex

	mu     sync.RWMutex
	latest map[string]SourceStatus

	cron *cron.Cron
}

// New builds a Scheduler for cfg.Sources. recorder and sink may be nil.
func New(cfg *config.Config, f Fetcher, recorder Recorder, sink Sink) *Scheduler {
	return &Scheduler{
		sources:  cfg.Sources,
		spec:     cfg.RefreshCron,
		fetcher:  f,
		recorder: recorder,
		sink:     sink,
		latest:   make(map[string]SourceStatus),
	}
}

// Start schedules RunOnce according to the refresh cron expression.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	appLog.Info("scheduler started", "refresh", s.spec, "sources", len(s.sources))
	return nil
}

// Stop halts the cron loop and waits for a running import to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.cron = nil
	appLog.Info("scheduler stopped")
}

// RunOnce imports every source sequentially and returns their statuses in
// configuration order.
func (s *Scheduler) RunOnce(ctx context.Context) []SourceStatus {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	out := make([]SourceStatus, 0, len(s.sources))
	for _, src := range s.sources {
		if ctx.Err() != nil {
			break
		}
		st := s.runSource(ctx, src)
		s.mu.Lock()
		s.latest[src.ID] = st
		s.mu.Unlock()
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) runSource(ctx context.Context, src config.SourceConfig) SourceStatus {
	st := SourceStatus{SourceID: src.ID, Format: src.Format, UpdatedAt: time.Now()}
	entry := journal.Entry{ID: uuid.NewString(), Source: src.ID, Format: src.Format, CreatedAt: st.UpdatedAt}

	res, err := s.fetcher.FetchOne(ctx, fetch.Source{ID: src.ID, URL: src.URL, Path: src.Path})
	if err == nil {
		st.FromCache = res.FromCache
		var rep importer.Report
		rep, err = s.engine.Run(string(res.Body), src.Format)
		if err == nil {
			st.Report = &rep
			st.Summary = rep.Summary()
			entry.ID = rep.ID
			entry.Found, entry.Imported, entry.DateFallbacks = rep.Found, rep.Imported, rep.DateFallbacks
			appLog.Info("source imported", "id", src.ID, "format", src.Format, "summary", st.Summary, "from_cache", res.FromCache)
			if s.sink != nil {
				if serr := s.sink.Accept(ctx, src.ID, rep); serr != nil {
					appLog.Error("sink rejected import", serr, "id", src.ID)
					entry.Error = serr.Error()
				}
			}
		}
	}
	if err != nil {
		st.Error = err.Error()
		entry.Error = err.Error()
		appLog.Error("source import failed", err, "id", src.ID, "format", src.Format)
	}

	if s.recorder != nil {
		if jerr := s.recorder.Record(ctx, entry); jerr != nil {
			appLog.Error("journal record failed", jerr, "id", src.ID)
		}
	}
	return st
}

// Latest returns the most recent status of every source that has run, in
// configuration order.
func (s *Scheduler) Latest() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SourceStatus, 0, len(s.latest))
	for _, src := range s.sources {
		if st, ok := s.latest[src.ID]; ok {
			out = append(out, st)
		}
	}
	return out
}

// cronLogger routes robfig/cron's logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
