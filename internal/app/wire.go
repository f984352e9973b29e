package app

import (
	"site_watcher/internal/config"
	"site_watcher/internal/db"
	"site_watcher/internal/fetcher"
	"site_watcher/internal/notify"
	"site_watcher/internal/talk"

	"go.uber.org/zap"
)

// NewWatcherApp builds every component from the config.
func NewWatcherApp(cfg *config.WatcherConfig, logger *zap.Logger) (*WatcherApp, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := fetcher.New(
		fetcher.WithUserAgent(cfg.Site.UserAgent),
		fetcher.WithTimeout(cfg.FetchTimeout()),
		fetcher.WithRobots(cfg.Site.RespectRobots),
		fetcher.WithLogger(logger.Named("fetcher")),
	)

	var closers []func() error
	var snapshots db.SnapshotStore
	switch cfg.Store.Backend {
	case "mongo":
		mongoDB, err := db.NewMongoDB(cfg.Store.Mongo)
		if err != nil {
			return nil, err
		}
		snapshots = mongoDB
		closers = append(closers, mongoDB.Close)
	default:
		snapshots = db.NewFileSnapshotStore(cfg.Store.SnapshotFile)
	}

	discord := notify.NewDiscord(cfg.Notify.Discord.BaseURL, cfg.Secrets.DiscordToken)

	// Without an ops channel, reports are only logged; they never reach the
	// announcement channel.
	var ops notify.Notifier
	if id := cfg.Notify.Discord.OpsChannelID; id != "" {
		ops = discord.Channel(id)
	} else {
		logger.Warn("No ops channel configured, operator reports go to the log only")
	}
	reporter := notify.NewReporter(ops, logger.Named("ops"))

	var announcer notify.Notifier
	if id := cfg.Notify.Discord.ChannelID; id != "" {
		announcer = discord.Channel(id)
	}

	var poster notify.Notifier
	if cfg.Notify.X.Enabled && cfg.Secrets.XAccessToken != "" {
		poster = notify.NewX(cfg.Notify.X.BaseURL, cfg.Secrets.XAccessToken)
	}

	var talkChecker TalkChecker
	if cfg.TalkEnabled() {
		w, closeTalk := NewTalkWatcher(cfg, logger)
		talkChecker = w
		if closeTalk != nil {
			closers = append(closers, closeTalk)
		}
	}

	a := New(cfg, Deps{
		Fetcher:   f,
		Snapshots: snapshots,
		Talk:      talkChecker,
		Announcer: announcer,
		Poster:    poster,
		Reporter:  reporter,
		Logger:    logger,
	})
	a.closers = closers
	return a, nil
}

// NewTalkWatcher wires the talk collector with the loader the config selects.
// The returned close func is nil when the loader holds nothing open.
func NewTalkWatcher(cfg *config.WatcherConfig, logger *zap.Logger) (*talk.Watcher, func() error) {
	talkLog := logger.Named("talk")
	pageCfg := talk.PageConfig{
		TalkURL:           cfg.Talk.URL,
		LoginURL:          cfg.Talk.LoginURL,
		IDField:           cfg.Talk.IDField,
		PasswordField:     cfg.Talk.PasswordField,
		SubmitSelector:    cfg.Talk.SubmitSelector,
		ContainerSelector: cfg.Talk.ContainerSelector,
		ContentTimeout:    cfg.ContentTimeout(),
		UserAgent:         cfg.Site.UserAgent,
		Logger:            talkLog,
	}

	var loader talk.Loader
	var closeLoader func() error
	if cfg.Talk.Driver == "http" {
		loader = talk.NewHTTPLoader(pageCfg)
	} else {
		rodLoader := talk.NewRodLoader(pageCfg, cfg.Talk.RemoteURL)
		loader = rodLoader
		closeLoader = rodLoader.Close
	}

	collector := talk.NewCollector(loader, db.NewSessionStore(cfg.Store.SessionFile), talk.CollectorConfig{
		ContainerSelector: cfg.Talk.ContainerSelector,
		CommentSelector:   cfg.Talk.CommentSelector,
		Logger:            talkLog,
	})
	return talk.NewWatcher(collector, db.NewTalkStore(cfg.Store.TalkSnapshotFile), cfg.Credentials(), talkLog), closeLoader
}
