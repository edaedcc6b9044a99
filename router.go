package deskweb

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/dormoron/deskweb/internal/errs"
	lru "github.com/hashicorp/golang-lru"
)

const defaultMatchCacheSize = 1024

// routeKey 是路由表和匹配缓存的键结构
type routeKey struct {
	method string
	path   string
}

type routeEntry struct {
	key     routeKey
	pattern *pattern
	handler *RequestHandler
}

// RouteTable maps (method, path pattern) to the adapter serving it.
//
// The table is written during a single synchronous registration phase and
// read-only once Freeze has been called; lookups need no locking. Registering
// the same (method, path) twice replaces the earlier handler.
//
// Static paths are resolved by an exact lookup, patterns with captures are
// tried in registration order. Successful matches are remembered in a bounded
// LRU cache, which is only consulted once the table is frozen.
type RouteTable struct {
	entries []*routeEntry
	index   map[routeKey]int
	log     *slog.Logger
	cache   *lru.Cache
	frozen  bool
}

// NewRouteTable creates an empty table. cacheSize <= 0 selects the default
// cache size.
func NewRouteTable(logger *slog.Logger, cacheSize int) *RouteTable {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheSize <= 0 {
		cacheSize = defaultMatchCacheSize
	}
	// lru.New only fails for a non-positive size.
	c, _ := lru.New(cacheSize)
	return &RouteTable{
		index: make(map[routeKey]int),
		log:   logger,
		cache: c,
	}
}

// Register adds desc to the table. A malformed path pattern is reported as a
// *ConfigurationError. Registering into a frozen table panics.
func (t *RouteTable) Register(desc *HandlerDescriptor) error {
	key := routeKey{method: desc.Method, path: desc.Path}
	if t.frozen {
		panic(&ConfigurationError{Method: desc.Method, Path: desc.Path,
			Err: errs.ErrRegisterFrozen(desc.Method, desc.Path)})
	}
	p, err := compilePattern(desc.Path)
	if err != nil {
		return &ConfigurationError{Method: desc.Method, Path: desc.Path, Err: err}
	}

	entry := &routeEntry{key: key, pattern: p, handler: NewRequestHandler(desc, t.log)}
	if i, ok := t.index[key]; ok {
		t.log.Warn("route replaced by later registration",
			slog.String("method", key.method), slog.String("route", key.path))
		t.entries[i] = entry
		return nil
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, entry)
	return nil
}

// Freeze ends the registration phase.
func (t *RouteTable) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze has been called.
func (t *RouteTable) Frozen() bool {
	return t.frozen
}

// Len returns the number of registered routes.
func (t *RouteTable) Len() int {
	return len(t.entries)
}

// Routes returns the descriptors in registration order.
func (t *RouteTable) Routes() []*HandlerDescriptor {
	res := make([]*HandlerDescriptor, 0, len(t.entries))
	for _, e := range t.entries {
		res = append(res, e.handler.desc)
	}
	return res
}

// findRoute resolves method and path. HEAD falls back to GET routes.
func (t *RouteTable) findRoute(method, path string) (*matchInfo, bool) {
	key := routeKey{method: method, path: path}
	if t.frozen {
		if v, ok := t.cache.Get(key); ok {
			return v.(*matchInfo), true
		}
	}

	mi, ok := t.match(method, path)
	if !ok && method == http.MethodHead {
		mi, ok = t.match(http.MethodGet, path)
	}
	if ok && t.frozen {
		t.cache.Add(key, mi)
	}
	return mi, ok
}

func (t *RouteTable) match(method, path string) (*matchInfo, bool) {
	if i, ok := t.index[routeKey{method: method, path: path}]; ok && t.entries[i].pattern.static {
		e := t.entries[i]
		return &matchInfo{handler: e.handler, route: e.key.path}, true
	}
	for _, e := range t.entries {
		if e.key.method != method || e.pattern.static {
			continue
		}
		if captures, ok := e.pattern.match(path); ok {
			return &matchInfo{handler: e.handler, captures: captures, route: e.key.path}, true
		}
	}
	return nil, false
}

// allowedMethods lists the methods that have a route matching path.
func (t *RouteTable) allowedMethods(path string) []string {
	seen := make(map[string]struct{})
	for _, e := range t.entries {
		if _, ok := e.pattern.match(path); ok {
			seen[e.key.method] = struct{}{}
		}
	}
	res := make([]string, 0, len(seen))
	for m := range seen {
		res = append(res, m)
	}
	sort.Strings(res)
	return res
}
