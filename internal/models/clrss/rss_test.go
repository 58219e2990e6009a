package clrss

import (
	"fmt"
	"littlesite/internal/models/clposts"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func samplePosts(n int) []clposts.Post {
	posts := make([]clposts.Post, 0, n)
	for i := n; i >= 1; i-- {
		posts = append(posts, clposts.Post{
			ID:       uint(i),
			Slug:     fmt.Sprintf("post-%d", i),
			Title:    fmt.Sprintf("Post %d", i),
			Date:     now.AddDate(0, 0, -n+i),
			Category: "Vélo Route",
			Excerpt:  "Résumé",
		})
	}
	return posts
}

func TestNewFeed(t *testing.T) {
	posts := samplePosts(25)
	posts[0].Category = ""
	posts[0].Tags = []string{"go"}
	posts[0].FirstImage = "/static/images/a.png"

	meta := Meta{Title: "Mon site", Description: "**Vélo** et code", BaseURL: "https://example.org", Author: "moi", Version: "1.0"}
	rss := NewFeed(meta, posts, now, func(url string) *RSSEnclosure {
		return &RSSEnclosure{URL: meta.BaseURL + url, Length: 42, Type: "image/png"}
	})

	assert.Equal(t, "2.0", rss.Version)
	assert.Equal(t, "Vélo et code", rss.Channel.Description)
	assert.Equal(t, "fr-FR", rss.Channel.Language)
	assert.Equal(t, "© 2025 Mon site", rss.Channel.Copyright)
	require.Len(t, rss.Channel.Items, MaxItems)

	first := rss.Channel.Items[0]
	assert.Equal(t, "Post 25", first.Title)
	assert.Equal(t, "https://example.org/blog/post-25", first.Link)
	assert.Equal(t, first.Link, first.GUID)
	assert.Equal(t, "go", first.Category)
	assert.Equal(t, "moi", first.Author)
	assert.Equal(t, now.Format(time.RFC1123Z), first.PubDate)
	require.NotNil(t, first.Enclosure)
	assert.Equal(t, "https://example.org/static/images/a.png", first.Enclosure.URL)

	assert.Nil(t, rss.Channel.Items[1].Enclosure)
	assert.Equal(t, "Vélo Route", rss.Channel.Items[1].Category)
}

func TestMarshalFeed(t *testing.T) {
	out, err := Marshal(NewFeed(Meta{Title: "Site"}, samplePosts(2), now, nil))
	require.NoError(t, err)

	doc := string(out)
	assert.True(t, strings.HasPrefix(doc, "<?xml"))
	assert.Contains(t, doc, `<rss version="2.0">`)
	assert.Equal(t, 2, strings.Count(doc, "<item>"))
}

func TestNewSitemap(t *testing.T) {
	set := NewSitemap("https://example.org", []string{"/", "/blog"}, samplePosts(3))
	assert.Equal(t, SitemapNS, set.Xmlns)
	require.Len(t, set.URLs, 5)

	assert.Equal(t, URL{Loc: "https://example.org/", LastMod: "2025-03-10", ChangeFreq: "weekly", Priority: "1.0"}, set.URLs[0])
	assert.Equal(t, "0.8", set.URLs[1].Priority)
	assert.Equal(t, "https://example.org/blog/post-1", set.URLs[4].Loc)
	assert.Equal(t, "2025-03-08", set.URLs[4].LastMod)

	out, err := Marshal(set)
	require.NoError(t, err)
	assert.Contains(t, string(out), `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
}

func TestFilterCategory(t *testing.T) {
	posts := samplePosts(3)
	posts[1].Category = "Tech"

	assert.Len(t, FilterCategory(posts, "vélo-route"), 2)
	assert.Len(t, FilterCategory(posts, "Vélo Route"), 2)
	assert.Len(t, FilterCategory(posts, "tech"), 1)
	assert.Empty(t, FilterCategory(posts, "inconnue"))
}

func TestTrimBaseURL(t *testing.T) {
	assert.Equal(t, "https://example.org", TrimBaseURL("https://example.org/"))
	assert.Equal(t, "", TrimBaseURL(""))
}
