// Package talk collects comment identifiers from the member-only talk page.
//
// The Collector owns the login session and drives it through three states:
//
//	NoSession --login--> SessionValid --redirect to login page--> SessionExpired --login--> SessionValid
//
// Every Collect call ends in SessionValid or returns an error. How the page is
// actually loaded (headless browser or plain HTTP) is behind the Loader interface.
package talk

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"site_watcher/internal/models"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var (
	// ErrSession covers rejected credentials and sessions that are still
	// redirected to the login page right after a fresh login.
	ErrSession = errors.New("talk session")
	// ErrContentMissing means the talk container never appeared.
	ErrContentMissing = errors.New("talk content missing")
)

var reCommentID = regexp.MustCompile(`^comment-body-(\d+)`)

type State int

const (
	NoSession State = iota
	SessionValid
	SessionExpired
)

func (s State) String() string {
	switch s {
	case SessionValid:
		return "session_valid"
	case SessionExpired:
		return "session_expired"
	default:
		return "no_session"
	}
}

// Loader is the capability the collector needs from a page driver.
type Loader interface {
	Login(ctx context.Context, creds models.Credentials) (*models.Session, error)
	// LoadGatedPage returns the page HTML, or redirected=true when the session
	// landed on the login page instead of the talk page.
	LoadGatedPage(ctx context.Context, sess *models.Session) (html string, redirected bool, err error)
}

type SessionStore interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
}

type Collector struct {
	loader            Loader
	sessions          SessionStore
	containerSelector string
	commentSelector   string
	logger            *zap.Logger
	state             State
}

type CollectorConfig struct {
	ContainerSelector string
	CommentSelector   string
	Logger            *zap.Logger
}

func NewCollector(loader Loader, sessions SessionStore, cfg CollectorConfig) *Collector {
	if cfg.ContainerSelector == "" {
		cfg.ContainerSelector = "#chat-area"
	}
	if cfg.CommentSelector == "" {
		cfg.CommentSelector = `p[id^="comment-body-"]`
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Collector{
		loader:            loader,
		sessions:          sessions,
		containerSelector: cfg.ContainerSelector,
		commentSelector:   cfg.CommentSelector,
		logger:            cfg.Logger,
	}
}

// State is the state the last Collect call ended in.
func (c *Collector) State() State { return c.state }

// Collect returns the comment ids in page order together with the session that
// produced them. A nil sess falls back to the persisted session, if any.
func (c *Collector) Collect(ctx context.Context, creds models.Credentials, sess *models.Session) ([]string, *models.Session, error) {
	c.state = NoSession

	if sess == nil {
		stored, err := c.sessions.Load(ctx)
		if err != nil {
			c.logger.Warn("Stored session unreadable, logging in again", zap.Error(err))
		}
		sess = stored
	}

	if sess == nil {
		c.logger.Info("No existing session, logging in")
		fresh, err := c.login(ctx, creds)
		if err != nil {
			return nil, nil, err
		}
		sess = fresh
	} else {
		c.logger.Info("Using existing session for talk page")
	}

	html, redirected, err := c.loader.LoadGatedPage(ctx, sess)
	if err != nil {
		return nil, sess, c.pageError(err)
	}

	if redirected {
		c.state = SessionExpired
		c.logger.Info("Session expired, logging in again")

		fresh, err := c.login(ctx, creds)
		if err != nil {
			return nil, nil, err
		}
		sess = fresh

		html, redirected, err = c.loader.LoadGatedPage(ctx, sess)
		if err != nil {
			return nil, sess, c.pageError(err)
		}
		if redirected {
			c.state = NoSession
			return nil, nil, fmt.Errorf("%w: still redirected to login after a fresh login", ErrSession)
		}
	}

	c.state = SessionValid

	ids, err := ExtractCommentIDs(html, c.containerSelector, c.commentSelector)
	if err != nil {
		return nil, sess, err
	}

	c.logger.Info("Collected talk comments", zap.Int("count", len(ids)))
	return ids, sess, nil
}

func (c *Collector) login(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: credentials are incomplete", ErrSession)
	}

	sess, err := c.loader.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrSession) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: login: %v", ErrSession, err)
	}

	if err := c.sessions.Save(ctx, sess); err != nil {
		c.logger.Error("Failed to persist session", zap.Error(err))
	} else {
		c.logger.Info("Session saved successfully")
	}

	c.state = SessionValid
	return sess, nil
}

func (c *Collector) pageError(err error) error {
	c.state = NoSession
	if errors.Is(err, ErrContentMissing) || errors.Is(err, ErrSession) {
		return err
	}
	return fmt.Errorf("talk: load gated page: %w", err)
}

// ExtractCommentIDs returns the numeric suffix of every comment element inside
// the container, in page order.
func ExtractCommentIDs(html, containerSelector, commentSelector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("talk: parse page: %w", err)
	}

	container := doc.Find(containerSelector).First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: %s not found", ErrContentMissing, containerSelector)
	}

	ids := []string{}
	container.Find(commentSelector).Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		if m := reCommentID.FindStringSubmatch(id); m != nil {
			ids = append(ids, m[1])
		}
	})
	return ids, nil
}
