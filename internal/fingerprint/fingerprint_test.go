package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"site_watcher/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<section id="news">
  <h2>INFORMATION</h2>
  <ul>
    <li><a href="/news/12345?x=1">Live 2025.05.03</a></li>
    <li><a href="/news/12345/">duplicate</a></li>
    <li><a href="/news/ab">category</a></li>
    <li><a href="#top">top</a></li>
    <li><a href="/news/12399">Tour</a></li>
  </ul>
</section>
<section id="blog"><p>Hello   world</p>
<p>views: 1024</p></section>
</body></html>`

func doc(t *testing.T, s string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	require.NoError(t, err)
	return d
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a b", NormalizeText("  a \n\t b  "))
	assert.Equal(t, "a ", NormalizeText("a 1"))
	assert.Equal(t, "Live .. Tour", NormalizeText("Live 2025.05.03   Tour"))
	assert.Equal(t, "update ", NormalizeText("update ２０２５"))
}

func TestHashTextIgnoresDigits(t *testing.T) {
	assert.Equal(t, HashText("a 1"), HashText("a 999"))
	assert.Equal(t, HashText("Example text 123"), HashText("Example text 456"))
	assert.Equal(t, HashText("a  b"), HashText("a\n\nb"))
}

func TestHashTextDistinctContent(t *testing.T) {
	assert.NotEqual(t, HashText("Example text 123"), HashText("Different text 456"))
	assert.NotEqual(t, HashText("a"), HashText("b"))
}

func TestHashTextIsSHA256OfNormalized(t *testing.T) {
	sum := sha256.Sum256([]byte("BLOG text "))
	assert.Equal(t, hex.EncodeToString(sum[:]), HashText("BLOG text 456"))
}

func TestSectionText(t *testing.T) {
	d := doc(t, page)

	text, ok := SectionText(d.Find("section#blog"))
	require.True(t, ok)
	assert.Equal(t, "Hello   world views: 1024", text)

	_, ok = SectionText(d.Find("section#missing"))
	assert.False(t, ok)
}

func TestText(t *testing.T) {
	d := doc(t, page)

	assert.Nil(t, Text(d.Find("section#missing")))

	h := Text(d.Find("section#blog"))
	require.NotNil(t, h)
	assert.Equal(t, HashText("Hello world views: 0"), *h)
}

func TestNormalizeHref(t *testing.T) {
	assert.Equal(t, "/news/12345", NormalizeHref("/news/12345?x=1"))
	assert.Equal(t, "/news/12345", NormalizeHref("/news/12345/"))
	assert.Equal(t, "/news/12345", NormalizeHref("/news/12345/?a=b/"))
	assert.Equal(t, "", NormalizeHref("?only=query"))
}

func TestIsDetailPath(t *testing.T) {
	assert.True(t, IsDetailPath("/news/12345"))
	assert.True(t, IsDetailPath("/movie/detail/0000123456"))
	assert.False(t, IsDetailPath("/news/1234"))
	assert.False(t, IsDetailPath("/news/ab"))
	assert.False(t, IsDetailPath("/news/12345/comments"))
}

func TestIdentifiers(t *testing.T) {
	d := doc(t, page)

	ids := Identifiers(d.Find("section#news"))
	assert.Equal(t, []string{"/news/12345", "/news/12399"}, ids)

	missing := Identifiers(d.Find("section#missing"))
	require.NotNil(t, missing)
	assert.Empty(t, missing)
}

func TestBuildHashMode(t *testing.T) {
	d := doc(t, page)
	sections := []models.TrackedSection{
		{Selector: "section#news", Label: "INFORMATION"},
		{Selector: "section#blog", Label: "BLOG"},
		{Selector: "section#qa", Label: "Q&A"},
	}

	snap := Build(d, sections, models.ModeHash)
	assert.Equal(t, []string{"INFORMATION", "BLOG", "Q&A"}, snap.Labels())
	assert.Equal(t, models.ShapeScalar, snap.Shape())

	qa, ok := snap.Get("Q&A")
	require.True(t, ok)
	assert.Nil(t, qa.Hash)

	blog, _ := snap.Get("BLOG")
	require.NotNil(t, blog.Hash)
	assert.Equal(t, HashText("Hello world views: 0"), *blog.Hash)
}

func TestBuildItemsMode(t *testing.T) {
	d := doc(t, page)
	sections := []models.TrackedSection{
		{Selector: "section#news", Label: "INFORMATION"},
		{Selector: "section#qa", Label: "Q&A"},
	}

	snap := Build(d, sections, models.ModeItems)
	assert.Equal(t, models.ShapeSet, snap.Shape())

	news, _ := snap.Get("INFORMATION")
	assert.Equal(t, []string{"/news/12345", "/news/12399"}, news.Items)

	qa, _ := snap.Get("Q&A")
	assert.True(t, qa.IsList())
	assert.Empty(t, qa.Items)
}
