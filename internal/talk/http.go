package talk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"site_watcher/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
)

// HTTPLoader logs in by posting the login form with a plain cookie-jar client.
// It only works while the talk page renders server-side.
type HTTPLoader struct {
	cfg PageConfig
}

func NewHTTPLoader(cfg PageConfig) *HTTPLoader {
	cfg.defaults()
	return &HTTPLoader{cfg: cfg}
}

func (l *HTTPLoader) client(jar http.CookieJar) *resty.Client {
	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(l.cfg.NavigateTimeout)
	if l.cfg.UserAgent != "" {
		client.SetHeader("user-agent", l.cfg.UserAgent)
	}
	return client
}

func (l *HTTPLoader) Login(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := l.client(jar)

	l.cfg.Logger.Info("Starting login process for talk monitoring")

	res, err := client.R().SetContext(ctx).Get(l.cfg.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("talk: fetch login page: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("talk: fetch login page: HTTP %d", res.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("talk: parse login page: %w", err)
	}

	form := doc.Find(fieldSelector(l.cfg.IDField)).Closest("form")
	if form.Length() == 0 {
		return nil, fmt.Errorf("talk: login form not found")
	}

	data := map[string]string{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		if name, ok := s.Attr("name"); ok {
			data[name] = s.AttrOr("value", "")
		}
	})
	data[l.cfg.IDField] = creds.ID
	data[l.cfg.PasswordField] = creds.Password

	action := l.cfg.LoginURL
	if a, ok := form.Attr("action"); ok && a != "" {
		base := res.RawResponse.Request.URL
		if ref, err := base.Parse(a); err == nil {
			action = ref.String()
		}
	}

	res, err = client.R().
		SetContext(ctx).
		SetFormData(data).
		Post(action)
	if err != nil {
		return nil, fmt.Errorf("talk: submit login: %w", err)
	}

	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("talk: parse login response: %w", err)
	}
	if doc.Find(fieldSelector(l.cfg.PasswordField)).Length() > 0 {
		return nil, fmt.Errorf("%w: credentials rejected", ErrSession)
	}

	return &models.Session{
		Cookies:   jarCookies(jar, l.cfg.LoginURL, l.cfg.TalkURL),
		CreatedAt: time.Now(),
	}, nil
}

func (l *HTTPLoader) LoadGatedPage(ctx context.Context, sess *models.Session) (string, bool, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", false, err
	}
	restoreCookies(jar, sess.Cookies)

	res, err := l.client(jar).R().SetContext(ctx).Get(l.cfg.TalkURL)
	if err != nil {
		return "", false, fmt.Errorf("talk: fetch %s: %w", l.cfg.TalkURL, err)
	}

	if final := res.RawResponse.Request.URL.String(); strings.HasPrefix(final, l.cfg.LoginURL) {
		return "", true, nil
	}
	if res.IsError() {
		return "", false, fmt.Errorf("talk: fetch %s: HTTP %d", l.cfg.TalkURL, res.StatusCode())
	}

	r, err := charset.NewReader(bytes.NewReader(res.Body()), res.Header().Get("Content-Type"))
	if err != nil {
		return "", false, fmt.Errorf("talk: decode page: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", false, fmt.Errorf("talk: decode page: %w", err)
	}
	return string(body), false, nil
}

func jarCookies(jar http.CookieJar, urls ...string) []models.Cookie {
	seen := map[string]bool{}
	out := []models.Cookie{}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, c := range jar.Cookies(u) {
			key := u.Hostname() + "\x00" + c.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, models.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: u.Hostname(),
				Path:   "/",
			})
		}
	}
	return out
}

func restoreCookies(jar http.CookieJar, cookies []models.Cookie) {
	byHost := map[string][]*http.Cookie{}
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		byHost[host] = append(byHost[host], hc)
	}
	for host, hcs := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, hcs)
		jar.SetCookies(&url.URL{Scheme: "http", Host: host, Path: "/"}, hcs)
	}
}
