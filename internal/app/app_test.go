package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"site_watcher/internal/config"
	"site_watcher/internal/db"
	"site_watcher/internal/fetcher"
	"site_watcher/internal/models"
	"site_watcher/internal/notify"
	"site_watcher/internal/talk"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newsPage(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>HiyoLab</title></head><body><section id="news">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<a href="/news/%d/">item</a>`, id)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

type fakeFetcher struct {
	pages   []string
	errs    []error
	calls   int
	onFetch func()
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (*fetcher.Page, error) {
	i := f.calls
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.pages[min(i, len(f.pages)-1)]))
	if err != nil {
		return nil, err
	}
	return &fetcher.Page{URL: pageURL, StatusCode: 200, Title: "HiyoLab", Doc: doc}, nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.sent = append(n.sent, text)
	return n.err
}

type fakeTalk struct {
	enabled bool
	events  [][]models.ChangeEvent
	err     error
	calls   int
}

func (f *fakeTalk) Enabled() bool { return f.enabled }

func (f *fakeTalk) Check(context.Context) ([]models.ChangeEvent, error) {
	i := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events[min(i, len(f.events)-1)], nil
}

type harness struct {
	app       *WatcherApp
	fetcher   *fakeFetcher
	announcer *fakeNotifier
	poster    *fakeNotifier
	ops       *fakeNotifier
	snapPath  string
}

func testConfig() *config.WatcherConfig {
	return &config.WatcherConfig{
		Site: config.SiteConfig{
			URL:      "https://example.jp/",
			Mode:     models.ModeItems,
			Sections: []models.TrackedSection{{Selector: "#news", Label: "NEWS"}},
		},
		Talk:   config.TalkConfig{URL: "https://example.jp/talk"},
		Notify: config.NotifyConfig{Discord: config.DiscordConfig{Mention: "@everyone"}, X: config.XConfig{Hashtags: []string{"HiyoLab"}}},
		Logic:  config.LogicConfig{IntervalSec: 1},
	}
}

func newHarness(t *testing.T, f *fakeFetcher, tk TalkChecker) *harness {
	t.Helper()
	h := &harness{
		fetcher:   f,
		announcer: &fakeNotifier{},
		poster:    &fakeNotifier{},
		ops:       &fakeNotifier{},
		snapPath:  filepath.Join(t.TempDir(), "snapshot.json"),
	}
	h.app = New(testConfig(), Deps{
		Fetcher:   f,
		Snapshots: db.NewFileSnapshotStore(h.snapPath),
		Talk:      tk,
		Announcer: h.announcer,
		Poster:    h.poster,
		Reporter:  notify.NewReporter(h.ops, nil),
		Now:       func() time.Time { return time.Date(2025, 5, 3, 4, 44, 0, 0, time.UTC) },
	})
	return h
}

func TestFirstCycleIsSilent(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, nil)

	report := h.app.RunCycle(context.Background())
	require.NoError(t, report.Page.Err)
	assert.Equal(t, []models.ChangeEvent{models.InitialScan}, report.Page.Events)
	assert.Empty(t, h.announcer.sent)
	assert.Empty(t, h.poster.sent)
	assert.FileExists(t, h.snapPath)
	assert.NotEmpty(t, report.ID)
}

func TestNewItemsAreAnnounced(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001), newsPage(10001, 10002)}}, nil)
	ctx := context.Background()

	h.app.RunCycle(ctx)
	report := h.app.RunCycle(ctx)

	require.NoError(t, report.Page.Err)
	require.Len(t, h.announcer.sent, 1)
	assert.Equal(t, "@everyone\n[HiyoLab](https://example.jp/) was updated!\nChanges in the following sections:\n• NEWS (+1)", h.announcer.sent[0])
	require.Len(t, h.poster.sent, 1)
	assert.Contains(t, h.poster.sent[0], "#HiyoLab\nhttps://example.jp/?t=20250503044400")

	stored, err := db.NewFileSnapshotStore(h.snapPath).Load(ctx)
	require.NoError(t, err)
	fp, _ := stored.Get("NEWS")
	assert.Equal(t, []string{"/news/10001", "/news/10002"}, fp.Items)
}

func TestUnchangedPageIsSilent(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001, 10002), newsPage(10002, 10001)}}, nil)

	h.app.RunCycle(context.Background())
	report := h.app.RunCycle(context.Background())
	assert.Empty(t, report.Page.Events)
	assert.Empty(t, h.announcer.sent)
}

func TestAnnounceFailureStillSavesSnapshot(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001), newsPage(10001, 10002), newsPage(10001, 10002)}}, nil)
	h.announcer.err = &notify.SendError{Target: "discord", StatusCode: 500}
	ctx := context.Background()

	h.app.RunCycle(ctx)
	report := h.app.RunCycle(ctx)
	require.NoError(t, report.Page.Err)
	assert.Error(t, report.Page.NotifyErr)
	require.Len(t, h.ops.sent, 1)
	assert.True(t, strings.HasPrefix(h.ops.sent[0], "[notification]"))

	report = h.app.RunCycle(ctx)
	assert.Empty(t, report.Page.Events)
}

func TestPostFailureReportsIntendedText(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001), newsPage(10001, 10002)}}, nil)
	h.poster.err = errors.New("duplicate content")

	h.app.RunCycle(context.Background())
	h.app.RunCycle(context.Background())

	require.Len(t, h.ops.sent, 1)
	assert.True(t, strings.HasPrefix(h.ops.sent[0], "Failed to post to X: duplicate content\nIntended post:\n／"))
	assert.Len(t, h.announcer.sent, 1)
}

func TestFetchErrorLeavesSnapshotAndRunsTalk(t *testing.T) {
	tk := &fakeTalk{enabled: true, events: [][]models.ChangeEvent{{models.InitialScan}}}
	h := newHarness(t, &fakeFetcher{
		pages: []string{newsPage(10001)},
		errs:  []error{nil, &fetcher.FetchError{URL: "https://example.jp/", StatusCode: 503, Err: errors.New("unavailable")}},
	}, tk)
	ctx := context.Background()

	h.app.RunCycle(ctx)
	before, err := os.ReadFile(h.snapPath)
	require.NoError(t, err)

	report := h.app.RunCycle(ctx)
	assert.Equal(t, KindFetch, Classify(report.Page.Err))
	assert.Equal(t, 2, tk.calls)
	require.Len(t, h.ops.sent, 1)
	assert.True(t, strings.HasPrefix(h.ops.sent[0], "[fetch]"))

	after, err := os.ReadFile(h.snapPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCorruptSnapshotIsInitialScan(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, nil)
	require.NoError(t, os.WriteFile(h.snapPath, []byte("[1, 2"), 0o644))

	report := h.app.RunCycle(context.Background())
	require.NoError(t, report.Page.Err)
	assert.Equal(t, []models.ChangeEvent{models.InitialScan}, report.Page.Events)
	assert.Empty(t, h.ops.sent)
}

func TestLegacyScalarSnapshotIsInitialScanInItemsMode(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, nil)
	require.NoError(t, os.WriteFile(h.snapPath, []byte(`{"NEWS": "abc"}`), 0o644))

	report := h.app.RunCycle(context.Background())
	assert.Equal(t, []models.ChangeEvent{models.InitialScan}, report.Page.Events)
	assert.Empty(t, h.announcer.sent)
}

func TestTalkSkippedWhenDisabled(t *testing.T) {
	tk := &fakeTalk{enabled: false}
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, tk)

	report := h.app.RunCycle(context.Background())
	assert.True(t, report.Talk.Skipped)
	assert.Zero(t, tk.calls)

	h = newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, nil)
	assert.True(t, h.app.RunCycle(context.Background()).Talk.Skipped)
}

func TestTalkUpdatesAreAnnounced(t *testing.T) {
	tk := &fakeTalk{enabled: true, events: [][]models.ChangeEvent{
		{models.InitialScan},
		{{Kind: models.EventNewTalk, NewCount: 2}},
	}}
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, tk)

	h.app.RunCycle(context.Background())
	assert.Empty(t, h.announcer.sent)

	h.app.RunCycle(context.Background())
	assert.Equal(t, []string{"@everyone\nNew talk messages: 2\n[talk](https://example.jp/talk)"}, h.announcer.sent)
}

func TestTalkErrorIsReported(t *testing.T) {
	tk := &fakeTalk{enabled: true, err: fmt.Errorf("%w: still redirected", talk.ErrSession)}
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, tk)

	report := h.app.RunCycle(context.Background())
	require.NoError(t, report.Page.Err)
	assert.ErrorIs(t, report.Talk.Err, talk.ErrSession)
	require.Len(t, h.ops.sent, 1)
	assert.True(t, strings.HasPrefix(h.ops.sent[0], "[session]"))
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		KindFetch:          &fetcher.FetchError{URL: "u", Err: errors.New("x")},
		KindSession:        fmt.Errorf("wrap: %w", talk.ErrSession),
		KindContentMissing: talk.ErrContentMissing,
		KindPersistence:    &db.PersistenceError{Op: "rename", Path: "p", Err: errors.New("x")},
		KindNotification:   &notify.SendError{Target: "x", StatusCode: 403},
		KindOther:          errors.New("boom"),
	}
	for kind, err := range cases {
		assert.Equal(t, kind, Classify(err), kind)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{pages: []string{newsPage(10001)}, onFetch: cancel}
	h := newHarness(t, f, nil)

	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, 1, f.calls)
}

func TestCloseRunsClosers(t *testing.T) {
	h := newHarness(t, &fakeFetcher{pages: []string{newsPage(10001)}}, nil)
	closed := 0
	h.app.closers = []func() error{func() error { closed++; return nil }}

	require.NoError(t, h.app.Close())
	require.NoError(t, h.app.Close())
	assert.Equal(t, 1, closed)
}
