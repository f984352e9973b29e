// Package fingerprint turns page sections into comparison-stable values:
// a digest of the normalized text, or the set of detail-page links it contains.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"site_watcher/internal/models"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var reDetailPath = regexp.MustCompile(`[0-9]{5,}$`)

// NormalizeText collapses whitespace, trims, then deletes every digit so that
// counters and dates embedded as numerals never register as changes.
func NormalizeText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, text)
}

func HashText(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// SectionText joins the trimmed text nodes of the first selected node with single spaces.
func SectionText(sel *goquery.Selection) (string, bool) {
	if sel == nil || sel.Length() == 0 {
		return "", false
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel.Nodes[0])

	return strings.Join(parts, " "), true
}

// Text returns the digest of a section, or nil when the selector matched nothing.
func Text(sel *goquery.Selection) *string {
	text, ok := SectionText(sel)
	if !ok {
		return nil
	}
	h := HashText(text)
	return &h
}

func NormalizeHref(href string) string {
	if i := strings.IndexByte(href, '?'); i != -1 {
		href = href[:i]
	}
	return strings.TrimSuffix(href, "/")
}

// IsDetailPath reports whether the final path segment ends in five or more digits,
// which is how the site numbers its detail pages.
func IsDetailPath(path string) bool {
	return reDetailPath.MatchString(path)
}

// Identifiers lists the detail-page links inside the first selected node in
// first-seen order. A missing section yields an empty list.
func Identifiers(sel *goquery.Selection) []string {
	ids := []string{}
	if sel == nil || sel.Length() == 0 {
		return ids
	}

	seen := make(map[string]bool)
	sel.First().Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = NormalizeHref(strings.TrimSpace(href))
		if !IsDetailPath(href) || seen[href] {
			return
		}
		seen[href] = true
		ids = append(ids, href)
	})
	return ids
}

// Build fingerprints every tracked section of doc in declaration order.
func Build(doc *goquery.Document, sections []models.TrackedSection, mode models.Mode) *models.Snapshot {
	snap := models.NewSnapshot()
	for _, section := range sections {
		sel := doc.Find(section.Selector).First()
		if mode == models.ModeItems {
			snap.Put(section.Label, models.ItemsFingerprint(Identifiers(sel)))
		} else {
			snap.Put(section.Label, models.HashFingerprint(Text(sel)))
		}
	}
	return snap
}
