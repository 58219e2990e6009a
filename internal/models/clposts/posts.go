package clposts

import (
	"bytes"
	"fmt"
	"html/template"
	"littlesite/internal/models/clmarkdown"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-yaml"
	stripmd "github.com/writeas/go-strip-markdown"
)

const wordsPerMinute = 200

var (
	fileNamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)\.md$`)
	reImage         = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	reImageInline   = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	dateLayouts     = []string{time.RFC3339, "2006-01-02 15:04:05 -0700 MST", "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}
)

// Post est un article lu depuis un fichier markdown, immuable une fois chargé
type Post struct {
	ID          uint          `json:"id"`
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Date        time.Time     `json:"date"`
	Category    string        `json:"category,omitempty"`
	Tags        []string      `json:"tags"`
	Excerpt     string        `json:"excerpt"`
	Draft       bool          `json:"draft"`
	Author      string        `json:"author,omitempty"`
	Content     string        `json:"-"`
	ContentHTML template.HTML `json:"content_html"`
	ReadingTime int           `json:"reading_time"`
	FirstImage  string        `json:"image,omitempty"`
	FileName    string        `json:"-"`
}

type frontMatter struct {
	Title    string   `yaml:"title"`
	Slug     string   `yaml:"slug"`
	Date     string   `yaml:"date"`
	Category string   `yaml:"category"`
	Tags     []string `yaml:"tags"`
	Excerpt  string   `yaml:"excerpt"`
	Draft    bool     `yaml:"draft"`
	Author   string   `yaml:"author"`
}

// ParseFile lit un fichier YYYY-MM-DD-slug.md, modTime sert de date en dernier recours
func ParseFile(name string, data []byte, modTime time.Time) (*Post, error) {
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	post := &Post{
		Title:    strings.TrimSpace(meta.Title),
		Slug:     strings.TrimSpace(meta.Slug),
		Category: strings.TrimSpace(meta.Category),
		Tags:     cleanTags(meta.Tags),
		Excerpt:  strings.TrimSpace(meta.Excerpt),
		Draft:    meta.Draft,
		Author:   strings.TrimSpace(meta.Author),
		Content:  body,
		FileName: name,
	}

	fileDate, fileSlug := parseFileName(name)
	if post.Slug == "" {
		post.Slug = fileSlug
	}
	post.Slug = Slugify(post.Slug)
	if post.Slug == "" {
		return nil, fmt.Errorf("%s: slug vide", name)
	}

	switch {
	case meta.Date != "":
		post.Date, err = parseDate(meta.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	case !fileDate.IsZero():
		post.Date = fileDate
	default:
		post.Date = modTime.UTC()
	}

	if post.Title == "" {
		post.Title = titleFromSlug(post.Slug)
	}

	if post.Excerpt == "" {
		post.Excerpt = ExtractExcerpt(strings.TrimSpace(stripmd.Strip(CleanMarkdownForExcerpt(body))), 200)
	}
	if found, images := ExtractImages(body, true, true); found {
		post.FirstImage = images[0]
	}
	post.ReadingTime = ReadingTime(body)
	post.ContentHTML = clmarkdown.ToHTML(body)

	return post, nil
}

// splitFrontMatter sépare le bloc YAML délimité par --- du corps markdown
func splitFrontMatter(data []byte) (frontMatter, string, error) {
	var meta frontMatter

	content := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return meta, string(content), nil
	}

	// rest garde le saut de ligne d'ouverture, un bloc vide ---\n--- est ainsi reconnu
	rest := content[len("---"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return meta, "", fmt.Errorf("front matter non terminé")
	}

	if block := rest[:end]; len(bytes.TrimSpace(block)) > 0 {
		if err := yaml.Unmarshal(block, &meta); err != nil {
			return meta, "", fmt.Errorf("front matter invalide: %w", err)
		}
	}

	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return meta, strings.TrimLeft(string(body), "\n"), nil
}

func parseFileName(name string) (time.Time, string) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, strings.TrimSuffix(name, ".md")
	}
	date, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}, m[2]
	}
	return date, m[2]
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("date invalide %q", value)
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func titleFromSlug(slug string) string {
	title := strings.ReplaceAll(slug, "-", " ")
	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}

// ReadingTime compte 200 mots par minute, au moins une minute
func ReadingTime(markdown string) int {
	words := len(strings.Fields(stripmd.Strip(markdown)))
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Slugify garde lettres et chiffres en minuscules, les espaces deviennent des tirets
func Slugify(s string) string {
	var result strings.Builder

	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			result.WriteRune('-')
		}
	}

	return result.String()
}

// CleanMarkdownForExcerpt supprime les images
func CleanMarkdownForExcerpt(content string) string {
	return reImageInline.ReplaceAllString(content, "")
}

// ExtractExcerpt coupe en fin de phrase si possible, sinon sur un espace
func ExtractExcerpt(text string, maxLength int) string {
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	runes := []rune(text)

	cutPoint := maxLength
	for i := maxLength - 1; i >= maxLength-100 && i >= 0; i-- {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			cutPoint = i + 1
			break
		}
	}

	if cutPoint == maxLength {
		for i := maxLength - 1; i >= maxLength-50 && i >= 0; i-- {
			if runes[i] == ' ' {
				cutPoint = i
				break
			}
		}
	}

	result := strings.TrimSpace(string(runes[:cutPoint]))

	lastChar := runes[cutPoint-1]
	if lastChar != '.' && lastChar != '!' && lastChar != '?' {
		result += "..."
	}

	return result
}

// ExtractImages retourne les URL (fileOnly) ou les balises markdown complètes des images
func ExtractImages(markdown string, firstOnly bool, fileOnly bool) (bool, []string) {
	if markdown == "" {
		return false, nil
	}

	var l []string
	for _, match := range reImage.FindAllStringSubmatch(markdown, -1) {
		if fileOnly {
			l = append(l, strings.Trim(strings.TrimSpace(match[1]), `"' `))
		} else {
			l = append(l, strings.TrimSpace(match[0]))
		}
		if firstOnly {
			break
		}
	}

	return len(l) > 0, l
}
