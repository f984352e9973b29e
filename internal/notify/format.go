package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"site_watcher/internal/models"
)

// Bullets renders one "• ..." line per event.
func Bullets(events []models.ChangeEvent) string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, "• "+e.String())
	}
	return strings.Join(lines, "\n")
}

func UpdateMessage(mention, siteName, pageURL string, events []models.ChangeEvent) string {
	var b strings.Builder
	if mention != "" {
		b.WriteString(mention + "\n")
	}
	fmt.Fprintf(&b, "[%s](%s) was updated!\n", siteName, pageURL)
	b.WriteString("Changes in the following sections:\n")
	b.WriteString(Bullets(events))
	return b.String()
}

// PostMessage builds the X post. The link carries a timestamp query so two
// posts with the same sections are never rejected as duplicates.
func PostMessage(siteName, pageURL string, events []models.ChangeEvent, hashtags []string, now time.Time) string {
	var b strings.Builder
	b.WriteString("／\n")
	fmt.Fprintf(&b, "📢 %s was updated!\n", siteName)
	b.WriteString("＼\n")
	b.WriteString("Updated sections:\n")
	b.WriteString(Bullets(events))
	b.WriteString("\n\n")
	for _, tag := range hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		b.WriteString(tag + "\n")
	}
	b.WriteString(CacheBustURL(pageURL, now))
	return b.String()
}

func TalkMessage(mention, talkURL string, events []models.ChangeEvent) string {
	count := 0
	for _, e := range events {
		count += e.NewCount
	}
	var b strings.Builder
	if mention != "" {
		b.WriteString(mention + "\n")
	}
	fmt.Fprintf(&b, "New talk messages: %d\n", count)
	fmt.Fprintf(&b, "[talk](%s)", talkURL)
	return b.String()
}

// CacheBustURL replaces the query of pageURL with t=<yyyymmddhhmmss>.
func CacheBustURL(pageURL string, now time.Time) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.RawQuery = "t=" + now.Format("20060102150405")
	return u.String()
}

func PostFailureReport(err error, text string) string {
	return fmt.Sprintf("Failed to post to X: %v\nIntended post:\n%s", err, text)
}
