// Package fetcher downloads the public page with colly and hands back a parsed
// document. Any network failure, timeout or non-2xx status is a FetchError.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

var ErrDisallowed = errors.New("disallowed by robots.txt")

type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type Page struct {
	URL        string
	StatusCode int
	Title      string
	Doc        *goquery.Document
}

type Fetcher struct {
	userAgent     string
	timeout       time.Duration
	respectRobots bool
	logger        *zap.Logger

	robotsOnce  sync.Once
	robotsGroup *robotstxt.Group
}

type Option func(*Fetcher)

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithRobots makes Fetch refuse URLs that robots.txt disallows for the user agent.
func WithRobots(respect bool) Option {
	return func(f *Fetcher) { f.respectRobots = respect }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		userAgent: "Mozilla/5.0 (compatible; site_watcher/1.0)",
		timeout:   15 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads pageURL. Cancelling ctx aborts the request in flight.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	if f.respectRobots && !f.allowed(pageURL) {
		return nil, &FetchError{URL: pageURL, Err: ErrDisallowed}
	}

	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.timeout)
	c.WithTransport(&ctxTransport{ctx: ctx, base: http.DefaultTransport})

	var body []byte
	var status int
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, &FetchError{URL: pageURL, StatusCode: status, Err: err}
	}
	if body == nil {
		return nil, &FetchError{URL: pageURL, StatusCode: status, Err: errors.New("empty response")}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{URL: pageURL, StatusCode: status, Err: err}
	}

	f.logger.Debug("Fetched page",
		zap.String("url", pageURL),
		zap.Int("status", status),
		zap.Int("size", len(body)))

	return &Page{
		URL:        pageURL,
		StatusCode: status,
		Title:      f.title(body, doc, pageURL),
		Doc:        doc,
	}, nil
}

func (f *Fetcher) title(body []byte, doc *goquery.Document, pageURL string) string {
	parsedURL, err := url.Parse(pageURL)
	if err == nil {
		article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
		if err == nil && strings.TrimSpace(article.Title) != "" {
			return strings.TrimSpace(article.Title)
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func (f *Fetcher) allowed(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}

	f.robotsOnce.Do(func() {
		robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
		client := &http.Client{Timeout: f.timeout}

		resp, err := client.Get(robotsURL)
		if err != nil {
			f.logger.Warn("Failed to load robots.txt, ignoring", zap.String("url", robotsURL), zap.Error(err))
			return
		}
		defer resp.Body.Close()

		data, err := robotstxt.FromResponse(resp)
		if err != nil {
			f.logger.Warn("Failed to parse robots.txt, ignoring", zap.Error(err))
			return
		}
		f.robotsGroup = data.FindGroup(f.userAgent)
	})

	if f.robotsGroup == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return f.robotsGroup.Test(path)
}

// ctxTransport binds every colly request to the caller's context.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
