package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"site_watcher/internal/config"
	"site_watcher/internal/db"
	"site_watcher/internal/diff"
	"site_watcher/internal/fetcher"
	"site_watcher/internal/fingerprint"
	"site_watcher/internal/models"
	"site_watcher/internal/notify"
	"site_watcher/internal/talk"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*fetcher.Page, error)
}

type TalkChecker interface {
	Enabled() bool
	Check(ctx context.Context) ([]models.ChangeEvent, error)
}

// WatcherApp runs the poll cycle: the public page step, then the talk step.
type WatcherApp struct {
	config    *config.WatcherConfig
	fetcher   PageFetcher
	snapshots db.SnapshotStore
	talk      TalkChecker
	announcer notify.Notifier
	poster    notify.Notifier
	reporter  *notify.Reporter
	logger    *zap.Logger
	now       func() time.Time
	closers   []func() error
}

type Deps struct {
	Fetcher   PageFetcher
	Snapshots db.SnapshotStore
	// Talk is optional; nil disables the talk step.
	Talk TalkChecker
	// Announcer receives public update messages.
	Announcer notify.Notifier
	// Poster is optional; nil disables X posts.
	Poster   notify.Notifier
	Reporter *notify.Reporter
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(cfg *config.WatcherConfig, deps Deps) *WatcherApp {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Reporter == nil {
		deps.Reporter = notify.NewReporter(nil, deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &WatcherApp{
		config:    cfg,
		fetcher:   deps.Fetcher,
		snapshots: deps.Snapshots,
		talk:      deps.Talk,
		announcer: deps.Announcer,
		poster:    deps.Poster,
		reporter:  deps.Reporter,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

type StepResult struct {
	Events  []models.ChangeEvent
	Skipped bool
	// Err is the failure that ended the step early.
	Err error
	// NotifyErr collects delivery failures; the step itself still completed.
	NotifyErr error
}

type CycleReport struct {
	ID       string
	Page     StepResult
	Talk     StepResult
	Duration time.Duration
}

// RunCycle runs both steps once. A failure in one step never prevents the other.
func (a *WatcherApp) RunCycle(ctx context.Context) CycleReport {
	started := a.now()
	report := CycleReport{ID: uuid.NewString()}
	log := a.logger.With(zap.String("cycle_id", report.ID))

	log.Info("Cycle started")

	report.Page = a.pageStep(ctx, log)
	if report.Page.Err != nil {
		a.reporter.Report(ctx, Classify(report.Page.Err), report.Page.Err)
	}

	report.Talk = a.talkStep(ctx, log)
	if report.Talk.Err != nil {
		a.reporter.Report(ctx, Classify(report.Talk.Err), report.Talk.Err)
	}

	report.Duration = a.now().Sub(started)
	log.Info("Cycle finished",
		zap.Int("page_events", len(report.Page.Events)),
		zap.Int("talk_events", len(report.Talk.Events)),
		zap.Bool("talk_skipped", report.Talk.Skipped),
		zap.Duration("duration", report.Duration))
	return report
}

func (a *WatcherApp) pageStep(ctx context.Context, log *zap.Logger) StepResult {
	site := a.config.Site

	page, err := a.fetcher.Fetch(ctx, site.URL)
	if err != nil {
		return StepResult{Err: err}
	}

	curr := fingerprint.Build(page.Doc, site.Sections, site.Mode)

	prev, err := a.snapshots.Load(ctx)
	if err != nil {
		var corrupt *db.CorruptError
		if !errors.As(err, &corrupt) {
			return StepResult{Err: err}
		}
		log.Warn("Stored snapshot unreadable, treating as first scan", zap.Error(err))
		prev = nil
	}

	events := diff.Snapshots(site.Mode, prev, curr)
	result := StepResult{Events: events}

	switch {
	case diff.IsInitial(events):
		log.Info("Initial scan, snapshot created")
	case len(events) > 0:
		log.Info("Page changed", zap.Strings("changes", eventStrings(events)))
		result.NotifyErr = a.announcePage(ctx, a.siteName(page), events)
	default:
		log.Debug("No changes on page")
	}

	if err := a.snapshots.Save(ctx, curr); err != nil {
		result.Err = err
	}
	return result
}

func (a *WatcherApp) announcePage(ctx context.Context, siteName string, events []models.ChangeEvent) error {
	var errs []error
	site := a.config.Site

	if a.announcer != nil {
		msg := notify.UpdateMessage(a.config.Notify.Discord.Mention, siteName, site.URL, events)
		if err := a.announcer.Notify(ctx, msg); err != nil {
			a.reporter.Report(ctx, KindNotification, err)
			errs = append(errs, err)
		}
	}

	if a.poster != nil {
		post := notify.PostMessage(siteName, site.URL, events, a.config.Notify.X.Hashtags, a.now())
		if err := a.poster.Notify(ctx, post); err != nil {
			a.reporter.Text(ctx, notify.PostFailureReport(err, post))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *WatcherApp) talkStep(ctx context.Context, log *zap.Logger) StepResult {
	if a.talk == nil || !a.talk.Enabled() {
		log.Debug("Talk step skipped, credentials not set")
		return StepResult{Skipped: true}
	}

	events, err := a.talk.Check(ctx)
	if err != nil {
		return StepResult{Err: err}
	}

	result := StepResult{Events: events}
	if diff.IsInitial(events) || len(events) == 0 {
		return result
	}

	log.Info("New talk messages", zap.Strings("changes", eventStrings(events)))
	if a.announcer != nil {
		msg := notify.TalkMessage(a.config.Notify.Discord.Mention, a.config.Talk.URL, events)
		if err := a.announcer.Notify(ctx, msg); err != nil {
			a.reporter.Report(ctx, KindNotification, err)
			result.NotifyErr = err
		}
	}
	return result
}

func (a *WatcherApp) siteName(page *fetcher.Page) string {
	switch {
	case a.config.Site.Name != "":
		return a.config.Site.Name
	case page.Title != "":
		return page.Title
	default:
		return a.config.Site.URL
	}
}

// Run repeats RunCycle until ctx is cancelled or SIGINT/SIGTERM arrives. The
// interval is measured from the end of a cycle, so a slow cycle delays the next
// one instead of overlapping it.
func (a *WatcherApp) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			a.logger.Info("Received interrupt, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	interval := a.config.Interval()
	a.logger.Info("Watcher started",
		zap.String("url", a.config.Site.URL),
		zap.String("mode", string(a.config.Site.Mode)),
		zap.Duration("interval", interval),
		zap.Bool("talk", a.talk != nil && a.talk.Enabled()))

	for {
		a.RunCycle(ctx)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return a.Close()
		case <-timer.C:
		}
	}
}

func (a *WatcherApp) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

const (
	KindFetch          = "fetch"
	KindSession        = "session"
	KindContentMissing = "content_missing"
	KindPersistence    = "persistence"
	KindNotification   = "notification"
	KindOther          = "error"
)

// Classify names the failure kind of a step error for operator reports.
func Classify(err error) string {
	var (
		fetchErr   *fetcher.FetchError
		persistErr *db.PersistenceError
		corruptErr *db.CorruptError
		sendErr    *notify.SendError
	)
	switch {
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.Is(err, talk.ErrSession):
		return KindSession
	case errors.Is(err, talk.ErrContentMissing):
		return KindContentMissing
	case errors.As(err, &persistErr), errors.As(err, &corruptErr):
		return KindPersistence
	case errors.As(err, &sendErr):
		return KindNotification
	default:
		return KindOther
	}
}

func eventStrings(events []models.ChangeEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.String())
	}
	return out
}
