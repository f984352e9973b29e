package talk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"site_watcher/internal/db"
	"site_watcher/internal/diff"
	"site_watcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcher(t *testing.T, loader *fakeLoader) (*Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk_snapshot.json")
	c := NewCollector(loader, &memSessions{}, CollectorConfig{})
	return NewWatcher(c, db.NewTalkStore(path), creds, nil), path
}

func TestWatcherFirstCheckIsInitialScan(t *testing.T) {
	w, path := newWatcher(t, &fakeLoader{pages: []gatedPage{{html: talkPage("10", "9")}}})

	events, err := w.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, diff.IsInitial(events))

	stored, err := db.NewTalkStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "10"}, stored.Comments)
}

func TestWatcherReportsNewComments(t *testing.T) {
	w, _ := newWatcher(t, &fakeLoader{pages: []gatedPage{
		{html: talkPage("1", "2")},
		{html: talkPage("1", "2", "3", "4")},
		{html: talkPage("2", "3", "4")},
	}})
	ctx := context.Background()

	_, err := w.Check(ctx)
	require.NoError(t, err)

	events, err := w.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ChangeEvent{{Kind: models.EventNewTalk, NewCount: 2}}, events)

	events, err = w.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWatcherKeepsSessionBetweenChecks(t *testing.T) {
	loader := &fakeLoader{pages: []gatedPage{{html: talkPage("1")}, {html: talkPage("1")}}}
	w, _ := newWatcher(t, loader)

	_, err := w.Check(context.Background())
	require.NoError(t, err)
	_, err = w.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, loader.logins)
	assert.Same(t, loader.seen[0], loader.seen[1])
}

func TestWatcherCollectErrorLeavesSnapshot(t *testing.T) {
	w, path := newWatcher(t, &fakeLoader{pages: []gatedPage{
		{html: talkPage("1")},
		{err: errors.New("chrome crashed")},
	}})
	ctx := context.Background()

	_, err := w.Check(ctx)
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = w.Check(ctx)
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWatcherCorruptSnapshotStartsOver(t *testing.T) {
	w, path := newWatcher(t, &fakeLoader{pages: []gatedPage{{html: talkPage("5")}}})
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	events, err := w.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, diff.IsInitial(events))
}

func TestWatcherEnabled(t *testing.T) {
	w, _ := newWatcher(t, &fakeLoader{})
	assert.True(t, w.Enabled())

	off := NewWatcher(nil, nil, models.Credentials{ID: "only-id"}, nil)
	assert.False(t, off.Enabled())
}
