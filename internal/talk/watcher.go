package talk

import (
	"context"
	"errors"

	"site_watcher/internal/db"
	"site_watcher/internal/diff"
	"site_watcher/internal/models"

	"go.uber.org/zap"
)

type SnapshotStore interface {
	Load(ctx context.Context) (*models.TalkSnapshot, error)
	Save(ctx context.Context, snap *models.TalkSnapshot) error
}

// Watcher turns one collection into talk change events and persists the result.
type Watcher struct {
	collector *Collector
	store     SnapshotStore
	creds     models.Credentials
	logger    *zap.Logger

	session *models.Session
}

func NewWatcher(collector *Collector, store SnapshotStore, creds models.Credentials, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		collector: collector,
		store:     store,
		creds:     creds,
		logger:    logger,
	}
}

func (w *Watcher) Enabled() bool { return w.creds.Complete() }

// Check collects the current comments and diffs them against the stored
// snapshot. The stored snapshot is left untouched when collection fails.
func (w *Watcher) Check(ctx context.Context) ([]models.ChangeEvent, error) {
	ids, sess, err := w.collector.Collect(ctx, w.creds, w.session)
	w.session = sess
	if err != nil {
		return nil, err
	}

	curr := models.NewTalkSnapshot(ids)

	prev, err := w.store.Load(ctx)
	if err != nil {
		var corrupt *db.CorruptError
		if !errors.As(err, &corrupt) {
			return nil, err
		}
		w.logger.Warn("Talk snapshot unreadable, starting over", zap.Error(err))
		prev = nil
	}

	events := diff.Talk(prev, curr)

	if err := w.store.Save(ctx, curr); err != nil {
		return events, err
	}

	w.logger.Info("Talk check finished",
		zap.Int("comments", len(curr.Comments)),
		zap.Int("events", len(events)))
	return events, nil
}
