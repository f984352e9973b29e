package notify

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// X posts to the v2 tweets endpoint with a user access token.
type X struct {
	client  *resty.Client
	baseURL string
}

func NewX(baseURL, accessToken string) *X {
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetAuthToken(accessToken)
	return &X{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type tweet struct {
	Text string `json:"text"`
}

func (x *X) Notify(ctx context.Context, text string) error {
	return post(ctx, x.client, "x", x.baseURL+"/2/tweets", tweet{Text: text})
}
