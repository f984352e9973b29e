package config

import (
	"fmt"
	"os"
	"time"

	"site_watcher/internal/models"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

type SiteConfig struct {
	Name          string                  `yaml:"name"`
	URL           string                  `yaml:"url"`
	Mode          models.Mode             `yaml:"mode"`
	Sections      []models.TrackedSection `yaml:"sections"`
	UserAgent     string                  `yaml:"user_agent"`
	TimeoutSec    int                     `yaml:"timeout_sec"`
	RespectRobots bool                    `yaml:"respect_robots"`
}

type TalkConfig struct {
	URL               string `yaml:"url"`
	LoginURL          string `yaml:"login_url"`
	Driver            string `yaml:"driver"`
	RemoteURL         string `yaml:"remote_url"`
	ContainerSelector string `yaml:"container_selector"`
	CommentSelector   string `yaml:"comment_selector"`
	IDField           string `yaml:"id_field"`
	PasswordField     string `yaml:"password_field"`
	SubmitSelector    string `yaml:"submit_selector"`
	ContentTimeoutSec int    `yaml:"content_timeout_sec"`
}

type MongoConfig struct {
	Connection string `yaml:"connection"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Key        string `yaml:"key"`
}

type StoreConfig struct {
	Backend          string      `yaml:"backend"`
	SnapshotFile     string      `yaml:"snapshot_file"`
	TalkSnapshotFile string      `yaml:"talk_snapshot_file"`
	SessionFile      string      `yaml:"session_file"`
	Mongo            MongoConfig `yaml:"mongo"`
}

type DiscordConfig struct {
	BaseURL      string `yaml:"base_url"`
	ChannelID    string `yaml:"channel_id"`
	OpsChannelID string `yaml:"ops_channel_id"`
	Mention      string `yaml:"mention"`
}

type XConfig struct {
	Enabled  bool     `yaml:"enabled"`
	BaseURL  string   `yaml:"base_url"`
	Hashtags []string `yaml:"hashtags"`
}

type NotifyConfig struct {
	Discord DiscordConfig `yaml:"discord"`
	X       XConfig       `yaml:"x"`
}

type LogicConfig struct {
	IntervalSec int `yaml:"interval_sec"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// Secrets never live in the YAML file.
type Secrets struct {
	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`
	DiscordOpsID     string `env:"DISCORD_OPS_CHANNEL_ID"`
	XAccessToken     string `env:"X_ACCESS_TOKEN"`
	TalkID           string `env:"PLUSMEMBER_ID"`
	TalkPassword     string `env:"PLUSMEMBER_PASSWORD"`
	MongoURI         string `env:"MONGO_URI"`
}

type WatcherConfig struct {
	Site    SiteConfig   `yaml:"site"`
	Talk    TalkConfig   `yaml:"talk"`
	Store   StoreConfig  `yaml:"store"`
	Notify  NotifyConfig `yaml:"notify"`
	Logic   LogicConfig  `yaml:"logic"`
	Log     LogConfig    `yaml:"log"`
	Secrets Secrets      `yaml:"-"`
}

func LoadConfig(path string) (*WatcherConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, reads secrets from the environment, applies defaults and validates.
func Parse(data []byte) (*WatcherConfig, error) {
	var cfg WatcherConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *WatcherConfig) applyDefaults() {
	if c.Site.Mode == "" {
		c.Site.Mode = models.ModeItems
	}
	if c.Site.UserAgent == "" {
		c.Site.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.Site.TimeoutSec <= 0 {
		c.Site.TimeoutSec = 15
	}

	if c.Talk.Driver == "" {
		c.Talk.Driver = "browser"
	}
	if c.Talk.ContainerSelector == "" {
		c.Talk.ContainerSelector = "#chat-area"
	}
	if c.Talk.CommentSelector == "" {
		c.Talk.CommentSelector = `ul li div p[id^="comment-body-"]`
	}
	if c.Talk.IDField == "" {
		c.Talk.IDField = "form[id]"
	}
	if c.Talk.PasswordField == "" {
		c.Talk.PasswordField = "form[pass]"
	}
	if c.Talk.SubmitSelector == "" {
		c.Talk.SubmitSelector = `input[type="submit"]`
	}
	if c.Talk.ContentTimeoutSec <= 0 {
		c.Talk.ContentTimeoutSec = 10
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.SnapshotFile == "" {
		c.Store.SnapshotFile = "snapshot.json"
	}
	if c.Store.TalkSnapshotFile == "" {
		c.Store.TalkSnapshotFile = "talk_snapshot.json"
	}
	if c.Store.SessionFile == "" {
		c.Store.SessionFile = "session.json"
	}
	if c.Secrets.MongoURI != "" {
		c.Store.Mongo.Connection = c.Secrets.MongoURI
	}
	if c.Store.Mongo.Collection == "" {
		c.Store.Mongo.Collection = "snapshots"
	}
	if c.Store.Mongo.Key == "" {
		c.Store.Mongo.Key = "site"
	}

	if c.Notify.Discord.BaseURL == "" {
		c.Notify.Discord.BaseURL = "https://discord.com/api/v10"
	}
	if c.Secrets.DiscordChannelID != "" {
		c.Notify.Discord.ChannelID = c.Secrets.DiscordChannelID
	}
	if c.Secrets.DiscordOpsID != "" {
		c.Notify.Discord.OpsChannelID = c.Secrets.DiscordOpsID
	}
	if c.Notify.X.BaseURL == "" {
		c.Notify.X.BaseURL = "https://api.twitter.com"
	}

	if c.Logic.IntervalSec <= 0 {
		c.Logic.IntervalSec = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "console"
	}
}

func (c *WatcherConfig) Validate() error {
	if c.Site.URL == "" {
		return fmt.Errorf("config: site.url is required")
	}
	if len(c.Site.Sections) == 0 {
		return fmt.Errorf("config: site.sections must list at least one section")
	}
	seen := make(map[string]bool)
	for _, s := range c.Site.Sections {
		if s.Selector == "" || s.Label == "" {
			return fmt.Errorf("config: section needs both selector and label")
		}
		if seen[s.Label] {
			return fmt.Errorf("config: duplicate section label %q", s.Label)
		}
		seen[s.Label] = true
	}
	if !c.Site.Mode.Valid() {
		return fmt.Errorf("config: unknown site.mode %q", c.Site.Mode)
	}
	switch c.Talk.Driver {
	case "browser", "http":
	default:
		return fmt.Errorf("config: unknown talk.driver %q", c.Talk.Driver)
	}
	switch c.Store.Backend {
	case "file":
	case "mongo":
		if c.Store.Mongo.Connection == "" || c.Store.Mongo.Database == "" {
			return fmt.Errorf("config: store.mongo needs connection and database")
		}
	default:
		return fmt.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}
	if id := c.Notify.Discord.OpsChannelID; id != "" && id == c.Notify.Discord.ChannelID {
		return fmt.Errorf("config: notify.discord.ops_channel_id must differ from the announcement channel")
	}
	if c.TalkEnabled() && (c.Talk.URL == "" || c.Talk.LoginURL == "") {
		return fmt.Errorf("config: talk.url and talk.login_url are required when talk credentials are set")
	}
	return nil
}

// TalkEnabled is false unless both talk credentials are present.
func (c *WatcherConfig) TalkEnabled() bool {
	return c.Credentials().Complete()
}

func (c *WatcherConfig) Credentials() models.Credentials {
	return models.Credentials{ID: c.Secrets.TalkID, Password: c.Secrets.TalkPassword}
}

func (c *WatcherConfig) Interval() time.Duration {
	return time.Duration(c.Logic.IntervalSec) * time.Second
}

func (c *WatcherConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Site.TimeoutSec) * time.Second
}

func (c *WatcherConfig) ContentTimeout() time.Duration {
	return time.Duration(c.Talk.ContentTimeoutSec) * time.Second
}
