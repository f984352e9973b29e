package talk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"site_watcher/internal/models"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

type PageConfig struct {
	TalkURL           string
	LoginURL          string
	IDField           string
	PasswordField     string
	SubmitSelector    string
	ContainerSelector string
	ContentTimeout    time.Duration
	NavigateTimeout   time.Duration
	UserAgent         string
	Logger            *zap.Logger
}

func (c *PageConfig) defaults() {
	if c.IDField == "" {
		c.IDField = "form[id]"
	}
	if c.PasswordField == "" {
		c.PasswordField = "form[pass]"
	}
	if c.SubmitSelector == "" {
		c.SubmitSelector = `input[type="submit"]`
	}
	if c.ContainerSelector == "" {
		c.ContainerSelector = "#chat-area"
	}
	if c.ContentTimeout <= 0 {
		c.ContentTimeout = 10 * time.Second
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// RodLoader drives a headless Chrome through go-rod. The browser is connected
// on first use and kept until Close; every call gets its own incognito context.
// RemoteURL attaches to an external Chrome instead of launching one.
type RodLoader struct {
	cfg       PageConfig
	remoteURL string

	mu       sync.Mutex
	browser  *rod.Browser
	ws       *cdp.WebSocket
	launcher *launcher.Launcher
}

func NewRodLoader(cfg PageConfig, remoteURL string) *RodLoader {
	cfg.defaults()
	return &RodLoader{cfg: cfg, remoteURL: remoteURL}
}

func (l *RodLoader) Login(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	b, done, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	l.cfg.Logger.Info("Starting login process for talk monitoring")

	page, err := l.navigate(ctx, b, l.cfg.LoginURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.ContentTimeout)
	defer cancel()

	idInput, err := page.Context(waitCtx).Element(fieldSelector(l.cfg.IDField))
	if err != nil {
		return nil, fmt.Errorf("talk: login form not found: %w", err)
	}
	if err := idInput.Input(creds.ID); err != nil {
		return nil, fmt.Errorf("talk: fill id: %w", err)
	}
	passInput, err := page.Context(waitCtx).Element(fieldSelector(l.cfg.PasswordField))
	if err != nil {
		return nil, fmt.Errorf("talk: password field not found: %w", err)
	}
	if err := passInput.Input(creds.Password); err != nil {
		return nil, fmt.Errorf("talk: fill password: %w", err)
	}
	submit, err := page.Context(waitCtx).Element(l.cfg.SubmitSelector)
	if err != nil {
		return nil, fmt.Errorf("talk: submit button not found: %w", err)
	}

	wait := page.Context(ctx).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("talk: submit login: %w", err)
	}
	wait()

	still, _, err := page.Has(fieldSelector(l.cfg.PasswordField))
	if err == nil && still {
		return nil, fmt.Errorf("%w: credentials rejected", ErrSession)
	}

	cookies, err := b.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("talk: read cookies: %w", err)
	}

	return &models.Session{
		Cookies:   cookiesFromRod(cookies),
		CreatedAt: time.Now(),
	}, nil
}

func (l *RodLoader) LoadGatedPage(ctx context.Context, sess *models.Session) (string, bool, error) {
	b, done, err := l.open(ctx)
	if err != nil {
		return "", false, err
	}
	defer done()

	if err := b.SetCookies(cookiesToRod(sess.Cookies)); err != nil {
		return "", false, fmt.Errorf("talk: restore cookies: %w", err)
	}

	page, err := l.navigate(ctx, b, l.cfg.TalkURL)
	if err != nil {
		return "", false, err
	}
	defer page.Close()

	info, err := page.Info()
	if err != nil {
		return "", false, fmt.Errorf("talk: page info: %w", err)
	}
	if strings.HasPrefix(info.URL, l.cfg.LoginURL) {
		return "", true, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.ContentTimeout)
	defer cancel()
	if _, err := page.Context(waitCtx).Element(l.cfg.ContainerSelector); err != nil {
		return "", false, fmt.Errorf("%w: waited %s for %s: %v", ErrContentMissing, l.cfg.ContentTimeout, l.cfg.ContainerSelector, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", false, fmt.Errorf("talk: read page: %w", err)
	}
	return html, false, nil
}

// open returns an incognito browser context so cookies never leak between calls.
func (l *RodLoader) open(ctx context.Context) (*rod.Browser, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser == nil {
		if err := l.connect(); err != nil {
			return nil, nil, err
		}
	}

	incognito, err := l.browser.Incognito()
	if err != nil {
		// Dropped so the next call reconnects.
		l.disconnect()
		return nil, nil, fmt.Errorf("talk: incognito context: %w", err)
	}

	return incognito.Context(ctx), func() { incognito.Close() }, nil
}

func (l *RodLoader) connect() error {
	wsURL := l.remoteURL
	var lnch *launcher.Launcher

	if wsURL == "" {
		lnch = launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := lnch.Launch()
		if err != nil {
			return fmt.Errorf("talk: launch chrome: %w", err)
		}
		wsURL = u
	}

	ws := &cdp.WebSocket{}
	if err := ws.Connect(context.Background(), wsURL, nil); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return fmt.Errorf("talk: connect chrome: %w", err)
	}

	b := rod.New().Client(cdp.New().Start(ws))
	if err := b.Connect(); err != nil {
		ws.Close()
		if lnch != nil {
			lnch.Cleanup()
		}
		return fmt.Errorf("talk: connect chrome: %w", err)
	}

	l.browser = b
	l.ws = ws
	l.launcher = lnch
	l.cfg.Logger.Info("Connected to chrome", zap.Bool("remote", l.remoteURL != ""))
	return nil
}

// disconnect closes the websocket. A remote Chrome keeps running; a launched one
// is shut down.
func (l *RodLoader) disconnect() error {
	var errs []error
	if l.launcher != nil && l.browser != nil {
		if err := l.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.ws != nil {
		if err := l.ws.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.launcher != nil {
		l.launcher.Cleanup()
	}
	l.browser, l.ws, l.launcher = nil, nil, nil
	return errors.Join(errs...)
}

// Close drops the browser connection and stops a launched Chrome. It is safe to
// call more than once.
func (l *RodLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnect()
}

func (l *RodLoader) navigate(ctx context.Context, b *rod.Browser, pageURL string) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("talk: create tab: %w", err)
	}
	if l.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.cfg.UserAgent}); err != nil {
			l.cfg.Logger.Warn("Failed to set user agent", zap.Error(err))
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, l.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("talk: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		l.cfg.Logger.Warn("Wait load timeout", zap.String("url", pageURL), zap.Error(err))
	}
	return page, nil
}

func fieldSelector(name string) string {
	return fmt.Sprintf("input[name=%q]", name)
}

func cookiesFromRod(cookies []*proto.NetworkCookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

func cookiesToRod(cookies []models.Cookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		if c.SameSite != "" {
			p.SameSite = proto.NetworkCookieSameSite(c.SameSite)
		}
		out = append(out, p)
	}
	return out
}
