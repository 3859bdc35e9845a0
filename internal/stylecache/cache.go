// Package stylecache maps concrete visual styles to stable display-attribute
// identifiers, one namespace per active theme. Within a theme's lifetime a
// style always maps to the same id and distinct styles never collide. A theme
// switch rebuilds that theme's mappings from scratch rather than patching
// them, so every style is re-announced to the editor before reuse.
package stylecache

import (
	"fmt"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/kakhl/internal/engine"
	"github.com/zjrosen/kakhl/internal/log"
)

// attrPrefix names the faces kakhl defines on the editor side.
const attrPrefix = "kakhl_"

// Cache allocates and remembers attribute ids per (theme, style) pair.
// Safe for concurrent use by all session goroutines.
type Cache struct {
	mu     sync.Mutex
	themes map[string]*gocache.Cache
	next   int // global counter so ids never collide across themes
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{themes: make(map[string]*gocache.Cache)}
}

// AttributeFor returns the stable attribute id for a style under a theme.
// The first lookup allocates the id; later lookups are pure reads returning
// the same value.
func (c *Cache) AttributeFor(themeID string, s engine.Style) string {
	key := styleKey(s)

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.themes[themeID]
	if !ok {
		entries = gocache.New(gocache.NoExpiration, 0)
		c.themes[themeID] = entries
	}

	if cached, found := entries.Get(key); found {
		if id, ok := cached.(string); ok {
			return id
		}
		log.Error(log.CatCache, "wrong type assertion when getting attribute id", "key", key)
	}

	c.next++
	id := fmt.Sprintf("%s%04d", attrPrefix, c.next)
	entries.Set(key, id, gocache.NoExpiration)
	log.Debug(log.CatCache, "allocated attribute", "theme", themeID, "id", id)
	return id
}

// OnThemeSwitch drops all cached mappings for a theme, retiring its ids.
// Subsequent lookups allocate new ones.
func (c *Cache) OnThemeSwitch(themeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entries, ok := c.themes[themeID]; ok {
		entries.Flush()
		delete(c.themes, themeID)
		log.Info(log.CatCache, "theme cache rebuilt", "theme", themeID)
	}
}

// Size returns the number of distinct styles cached for a theme.
func (c *Cache) Size(themeID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.themes[themeID]
	if !ok {
		return 0
	}
	return entries.ItemCount()
}

// styleKey encodes the full attribute tuple. Styles equal under == produce
// equal keys and vice versa.
func styleKey(s engine.Style) string {
	return fmt.Sprintf("%s|%s|%t%t%t%t",
		s.Foreground, s.Background, s.Bold, s.Italic, s.Underline, s.Strikethrough)
}
