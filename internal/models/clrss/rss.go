package clrss

import (
	"encoding/xml"
	"fmt"
	"littlesite/internal/models/clposts"
	"strings"
	"time"

	stripmd "github.com/writeas/go-strip-markdown"
)

const (
	SitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	MaxItems  = 20
)

// RSS représente le flux RSS complet
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel représente le canal RSS
type Channel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	Copyright     string    `xml:"copyright,omitempty"`
	Generator     string    `xml:"generator"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []RSSItem `xml:"item"`
}

// RSSItem représente un article dans le flux RSS
type RSSItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	Description string        `xml:"description"`
	Author      string        `xml:"author,omitempty"`
	Category    string        `xml:"category,omitempty"`
	GUID        string        `xml:"guid"`
	PubDate     string        `xml:"pubDate"`
	Enclosure   *RSSEnclosure `xml:"enclosure"`
}

type RSSEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

type URL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// Meta décrit le site dans l'entête du flux
type Meta struct {
	Title       string
	Description string
	BaseURL     string
	Language    string
	Author      string
	Version     string
}

// EnclosureFunc retourne l'enclosure d'une image ou nil
type EnclosureFunc func(imageURL string) *RSSEnclosure

// NewFeed construit le flux RSS 2.0 à partir des posts, déjà triés du plus récent au plus ancien
func NewFeed(meta Meta, posts []clposts.Post, now time.Time, enclosure EnclosureFunc) RSS {
	language := meta.Language
	if language == "" {
		language = "fr-FR"
	}
	if len(posts) > MaxItems {
		posts = posts[:MaxItems]
	}

	rss := RSS{
		Version: "2.0",
		Channel: Channel{
			Title:         meta.Title,
			Link:          meta.BaseURL,
			Description:   stripmd.Strip(meta.Description),
			Language:      language,
			Copyright:     fmt.Sprintf("© %d %s", now.Year(), meta.Title),
			Generator:     fmt.Sprintf("Littlesite v%s", meta.Version),
			LastBuildDate: now.Format(time.RFC1123Z),
			Items:         make([]RSSItem, 0, len(posts)),
		},
	}

	for _, post := range posts {
		// RSS 2.0 ne supporte qu'une catégorie par item
		category := post.Category
		if category == "" && len(post.Tags) > 0 {
			category = post.Tags[0]
		}

		author := post.Author
		if author == "" {
			author = meta.Author
		}

		link := meta.BaseURL + "/blog/" + post.Slug
		item := RSSItem{
			Title:       post.Title,
			Link:        link,
			Description: post.Excerpt,
			Author:      author,
			Category:    category,
			GUID:        link,
			PubDate:     post.Date.Format(time.RFC1123Z),
		}
		if post.FirstImage != "" && enclosure != nil {
			item.Enclosure = enclosure(post.FirstImage)
		}

		rss.Channel.Items = append(rss.Channel.Items, item)
	}

	return rss
}

// NewSitemap liste les pages statiques puis chaque post publié
func NewSitemap(baseURL string, pages []string, posts []clposts.Post) URLSet {
	set := URLSet{Xmlns: SitemapNS}

	var lastmod string
	if len(posts) > 0 {
		lastmod = posts[0].Date.Format("2006-01-02")
	}

	for _, page := range pages {
		priority := "0.8"
		if page == "/" {
			priority = "1.0"
		}
		set.URLs = append(set.URLs, URL{
			Loc:        baseURL + page,
			LastMod:    lastmod,
			ChangeFreq: "weekly",
			Priority:   priority,
		})
	}

	for _, post := range posts {
		set.URLs = append(set.URLs, URL{
			Loc:        baseURL + "/blog/" + post.Slug,
			LastMod:    post.Date.Format("2006-01-02"),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	return set
}

// Marshal produit le document XML avec son entête
func Marshal(v any) ([]byte, error) {
	output, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []byte(xml.Header + string(output)), nil
}

// FilterCategory garde les posts dont la catégorie correspond au slug donné
func FilterCategory(posts []clposts.Post, category string) []clposts.Post {
	slug := clposts.Slugify(category)
	filtered := make([]clposts.Post, 0, len(posts))
	for _, post := range posts {
		if clposts.Slugify(post.Category) == slug {
			filtered = append(filtered, post)
		}
	}
	return filtered
}

// TrimBaseURL retire le slash final de l'URL de base
func TrimBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}
