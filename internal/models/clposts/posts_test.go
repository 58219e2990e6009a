package clposts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePost(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParseFileUsesFileNameConvention(t *testing.T) {
	post, err := ParseFile("2026-01-15-my-post.md", []byte("---\ntitle: Mon article\n---\nBonjour le monde.\n"), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "my-post", post.Slug)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), post.Date)
	assert.Equal(t, "Mon article", post.Title)
	assert.Equal(t, "Bonjour le monde.", post.Excerpt)
	assert.Contains(t, string(post.ContentHTML), "<p>Bonjour le monde.</p>")
}

func TestParseFileFrontMatterWins(t *testing.T) {
	content := `---
title: "Sortie gravel"
slug: Gravel Day
date: 2025-06-01 08:30
category: Cycling
tags: [gravel, "  ", vélo]
excerpt: Un résumé
draft: false
author: Alex
---

![photo](/images/gravel.jpg)

Texte.
`
	post, err := ParseFile("2026-01-15-other.md", []byte(content), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "gravel-day", post.Slug)
	assert.Equal(t, time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC), post.Date)
	assert.Equal(t, "Cycling", post.Category)
	assert.Equal(t, []string{"gravel", "vélo"}, post.Tags)
	assert.Equal(t, "Un résumé", post.Excerpt)
	assert.Equal(t, "Alex", post.Author)
	assert.Equal(t, "/images/gravel.jpg", post.FirstImage)
}

func TestParseFileEmptyFrontMatter(t *testing.T) {
	for _, content := range []string{"---\n---\nBody.\n", "---\n\n---\nBody.\n"} {
		post, err := ParseFile("2026-01-15-my-post.md", []byte(content), time.Time{})
		require.NoError(t, err, content)

		assert.Equal(t, "my-post", post.Slug)
		assert.Equal(t, titleFromSlug("my-post"), post.Title)
		assert.Equal(t, "Body.", post.Excerpt)
		assert.Contains(t, string(post.ContentHTML), "<p>Body.</p>")
	}
}

func TestParseFileWithoutFrontMatter(t *testing.T) {
	modTime := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	post, err := ParseFile("notes.md", []byte("Juste du texte"), modTime)
	require.NoError(t, err)

	assert.Equal(t, "notes", post.Slug)
	assert.Equal(t, "Notes", post.Title)
	assert.Equal(t, modTime, post.Date)
}

func TestParseFileErrors(t *testing.T) {
	_, err := ParseFile("2026-01-01-a.md", []byte("---\ntitle: [oops\n---\nbody"), time.Time{})
	assert.Error(t, err)

	_, err = ParseFile("2026-01-01-b.md", []byte("---\ntitle: sans fin\n"), time.Time{})
	assert.Error(t, err)

	_, err = ParseFile("2026-01-01-c.md", []byte("---\ndate: demain\n---\n"), time.Time{})
	assert.Error(t, err)
}

func TestReadingTime(t *testing.T) {
	assert.Equal(t, 1, ReadingTime(""))
	assert.Equal(t, 1, ReadingTime(strings.Repeat("mot ", 200)))
	assert.Equal(t, 2, ReadingTime(strings.Repeat("mot ", 201)))
	assert.Equal(t, 3, ReadingTime(strings.Repeat("mot ", 450)))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "", Slugify(""))
	assert.Equal(t, "abcd01234--", Slugify("abcd01234--"))
	assert.Equal(t, "abc-d01234--", Slugify("%#abc d01234--"))
	assert.Equal(t, "hello-world", Slugify(" Hello World "))
}

func TestExtractExcerpt(t *testing.T) {
	assert.Equal(t, "court", ExtractExcerpt("court", 10))

	long := strings.Repeat("a", 30) + ". " + strings.Repeat("b", 30)
	assert.Equal(t, strings.Repeat("a", 30)+".", ExtractExcerpt(long, 40))

	words := strings.Repeat("mot ", 20)
	assert.True(t, strings.HasSuffix(ExtractExcerpt(words, 30), "..."))
}

func TestExtractImages(t *testing.T) {
	md := "![a](/img/1.jpg) texte ![b]( \"/img/2.png\" )"

	found, all := ExtractImages(md, false, true)
	assert.True(t, found)
	assert.Equal(t, []string{"/img/1.jpg", "/img/2.png"}, all)

	found, first := ExtractImages(md, true, false)
	assert.True(t, found)
	assert.Equal(t, []string{"![a](/img/1.jpg)"}, first)

	found, _ = ExtractImages("", true, true)
	assert.False(t, found)
}

func TestLoaderSkipsMalformedPosts(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "2025-01-01-first.md", "---\ntitle: First\ncategory: Tech\n---\nUn.")
	writePost(t, dir, "2025-02-01-second.md", "---\ntitle: Second\ncategory: Cycling\n---\nDeux.")
	writePost(t, dir, "2025-03-01-broken.md", "---\ntitle: [broken\n---\nTrois.")
	writePost(t, dir, "2025-04-01-draft.md", "---\ntitle: Draft\ndraft: true\n---\nQuatre.")
	writePost(t, dir, "README.txt", "pas un article")

	loader := NewLoader(dir, time.Minute)
	all := loader.All()
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Slug)
	assert.Equal(t, "first", all[1].Slug)

	_, ok := loader.BySlug("broken")
	assert.False(t, ok)
	_, ok = loader.BySlug("draft")
	assert.False(t, ok)
}

func TestLoaderQueries(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "2025-01-01-a.md", "---\ntitle: A\ncategory: Tech\n---\nA.")
	writePost(t, dir, "2025-01-02-b.md", "---\ntitle: B\ncategory: cycling\n---\nB.")
	writePost(t, dir, "2025-01-03-c.md", "---\ntitle: C\ncategory: Tech\n---\nC.")

	loader := NewLoader(dir, time.Minute)

	post, ok := loader.ByID(1)
	require.True(t, ok)
	assert.Equal(t, "a", post.Slug)
	post, ok = loader.ByID(3)
	require.True(t, ok)
	assert.Equal(t, "c", post.Slug)
	_, ok = loader.ByID(4)
	assert.False(t, ok)

	assert.Equal(t, 3, loader.Count(""))
	assert.Equal(t, 2, loader.Count("tech"))
	assert.Equal(t, []string{"Tech", "cycling"}, loader.Categories())

	page := loader.Page(1, 2, "")
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Slug)
	assert.Len(t, loader.Page(2, 2, ""), 1)
	assert.Empty(t, loader.Page(3, 2, ""))
	assert.Len(t, loader.Page(1, 10, "Tech"), 2)

	recent := loader.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "c", recent[0].Slug)
	assert.Len(t, loader.Recent(10), 3)
}

func TestLoaderCacheAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "2025-01-01-a.md", "A.")

	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	loader := NewLoader(dir, 5*time.Minute)
	loader.now = func() time.Time { return now }
	assert.Equal(t, 1, loader.Count(""))

	writePost(t, dir, "2025-01-02-b.md", "B.")
	assert.Equal(t, 1, loader.Count(""), "servi depuis le cache")

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 2, loader.Count(""))

	writePost(t, dir, "2025-01-03-c.md", "C.")
	loader.Invalidate()
	assert.Equal(t, 3, loader.Count(""))
}

func TestLoaderMissingDirectory(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent"), time.Minute)
	assert.Empty(t, loader.All())
	assert.Equal(t, 0, loader.Count(""))
}
