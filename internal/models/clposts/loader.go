package clposts

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// snapshot est remplacé en bloc, jamais modifié après publication
type snapshot struct {
	posts    []*Post // publiés, du plus récent au plus ancien
	bySlug   map[string]*Post
	byID     map[uint]*Post
	loadedAt time.Time
}

// Loader garde en mémoire les articles d'un répertoire pendant ttl
type Loader struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	mu     sync.Mutex
	cached atomic.Pointer[snapshot]
}

func NewLoader(dir string, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Loader{
		dir: dir,
		ttl: ttl,
		now: time.Now,
	}
}

// Invalidate force la relecture au prochain appel
func (l *Loader) Invalidate() {
	l.cached.Store(nil)
}

func (l *Loader) fresh(snap *snapshot) bool {
	return snap != nil && l.now().Sub(snap.loadedAt) < l.ttl
}

func (l *Loader) current() *snapshot {
	if snap := l.cached.Load(); l.fresh(snap) {
		return snap
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// un autre appel a pu recharger pendant l'attente
	if snap := l.cached.Load(); l.fresh(snap) {
		return snap
	}

	snap := l.load()
	l.cached.Store(snap)
	return snap
}

// load ignore les fichiers illisibles ou mal formés
func (l *Loader) load() *snapshot {
	snap := &snapshot{
		bySlug:   map[string]*Post{},
		byID:     map[uint]*Post{},
		loadedAt: l.now(),
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", l.dir).Msg("Répertoire des articles illisible")
		return snap
	}

	var posts []*Post
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Article illisible")
			continue
		}

		var modTime time.Time
		if info, err := entry.Info(); err == nil {
			modTime = info.ModTime()
		}

		post, err := ParseFile(entry.Name(), data, modTime)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Article ignoré")
			continue
		}
		if post.Draft {
			continue
		}
		if _, dup := snap.bySlug[post.Slug]; dup {
			log.Warn().Str("file", path).Str("slug", post.Slug).Msg("Slug en double, article ignoré")
			continue
		}
		snap.bySlug[post.Slug] = post
		posts = append(posts, post)
	}

	// les id suivent l'ordre chronologique et restent stables pour un même contenu
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Date.Equal(posts[j].Date) {
			return posts[i].FileName < posts[j].FileName
		}
		return posts[i].Date.Before(posts[j].Date)
	})
	for i, post := range posts {
		post.ID = uint(i + 1)
		snap.byID[post.ID] = post
	}

	snap.posts = make([]*Post, len(posts))
	for i, post := range posts {
		snap.posts[len(posts)-1-i] = post
	}

	log.Debug().Int("posts", len(posts)).Str("dir", l.dir).Msg("Articles chargés")
	return snap
}

func copyPosts(posts []*Post) []Post {
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = *p
	}
	return out
}

func (s *snapshot) filter(category string) []*Post {
	if category == "" {
		return s.posts
	}
	var out []*Post
	for _, p := range s.posts {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out
}

// All retourne les articles publiés, le plus récent en tête
func (l *Loader) All() []Post {
	return copyPosts(l.current().posts)
}

// Page commence à 1, category vide pour tous les articles
func (l *Loader) Page(page, size int, category string) []Post {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	posts := l.current().filter(category)

	start := (page - 1) * size
	if start >= len(posts) {
		return []Post{}
	}
	end := min(start+size, len(posts))
	return copyPosts(posts[start:end])
}

func (l *Loader) Count(category string) int {
	return len(l.current().filter(category))
}

func (l *Loader) BySlug(slug string) (Post, bool) {
	p, ok := l.current().bySlug[slug]
	if !ok {
		return Post{}, false
	}
	return *p, true
}

func (l *Loader) ByID(id uint) (Post, bool) {
	p, ok := l.current().byID[id]
	if !ok {
		return Post{}, false
	}
	return *p, true
}

// Categories retourne les catégories distinctes triées
func (l *Loader) Categories() []string {
	seen := map[string]struct{}{}
	categories := []string{}
	for _, p := range l.current().posts {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories
}

func (l *Loader) Recent(n int) []Post {
	posts := l.current().posts
	n = max(n, 0)
	if n < len(posts) {
		posts = posts[:n]
	}
	return copyPosts(posts)
}
