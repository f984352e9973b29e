package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const discordMessageLimit = 2000

type Discord struct {
	client  *resty.Client
	baseURL string
}

func NewDiscord(baseURL, token string) *Discord {
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetAuthScheme("Bot")
	client.SetAuthToken(token)
	return &Discord{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type discordMessage struct {
	Content         string                 `json:"content"`
	AllowedMentions discordAllowedMentions `json:"allowed_mentions"`
}

type discordAllowedMentions struct {
	Parse []string `json:"parse"`
}

// Send posts content to a channel. Content longer than Discord allows is cut.
func (d *Discord) Send(ctx context.Context, channelID, content string) error {
	if channelID == "" {
		return &SendError{Target: "discord", Err: fmt.Errorf("no channel configured")}
	}
	msg := discordMessage{
		Content:         truncate(content, discordMessageLimit),
		AllowedMentions: discordAllowedMentions{Parse: []string{"everyone"}},
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages", d.baseURL, channelID)
	return post(ctx, d.client, "discord channel "+channelID, endpoint, msg)
}

// Channel binds the client to one channel.
func (d *Discord) Channel(channelID string) Notifier {
	return &discordChannel{discord: d, id: channelID}
}

type discordChannel struct {
	discord *Discord
	id      string
}

func (c *discordChannel) Notify(ctx context.Context, text string) error {
	return c.discord.Send(ctx, c.id, text)
}
