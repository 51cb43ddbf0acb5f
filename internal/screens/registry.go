// Package screens keeps the tenant's navigable screens and maps paths onto them.
package screens

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	"github.com/jask/flowbit/internal/api"
)

// SupportPath is always routable, whether or not the tenant lists it.
const SupportPath = "/support"

// Fallback is installed when the screen list cannot be fetched for a non-auth reason.
var Fallback = api.Screen{Tenant: "Support Tickets", ScreenURL: SupportPath}

// Fetcher loads the caller's screens.
type Fetcher interface {
	Screens(ctx context.Context) ([]api.Screen, error)
}

// Registry is the ordered screen list for the current page. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	fetcher Fetcher
	log     *logrus.Logger
	screens []api.Screen
}

func NewRegistry(fetcher Fetcher, log *logrus.Logger) *Registry {
	return &Registry{fetcher: fetcher, log: log}
}

// Load fetches the screen list and replaces the current one. A non-auth failure
// installs the single fallback screen and returns the error for display. An auth
// failure installs nothing; the session is already gone.
func (r *Registry) Load(ctx context.Context) ([]api.Screen, error) {
	list, err := r.fetcher.Screens(ctx)
	switch {
	case err == nil:
		list = dedupe(list)
		r.set(list)
		r.log.WithField("count", len(list)).Info("screens loaded")
		return r.List(), nil
	case errors.Is(err, api.ErrUnauthorized):
		r.log.Warn("screens fetch unauthorized")
		return nil, err
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		r.log.WithError(err).Warn("screens fetch failed, using fallback")
		r.set([]api.Screen{Fallback})
		return r.List(), err
	}
}

// Clear empties the list.
func (r *Registry) Clear() {
	r.set(nil)
}

// List returns a copy of the screens in sidebar order.
func (r *Registry) List() []api.Screen {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.Screen, len(r.screens))
	copy(out, r.screens)
	return out
}

// Resolve maps a path to the screen that owns it. A screen owns its URL and every
// path below it. SupportPath resolves even when the tenant does not list it.
func (r *Registry) Resolve(p string) (api.Screen, bool) {
	p = Normalize(p)
	if p == "/" {
		return api.Screen{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := -1
	for i, s := range r.screens {
		u := Normalize(s.ScreenURL)
		if u == "/" || !owns(u, p) {
			continue
		}
		if best < 0 || len(u) > len(Normalize(r.screens[best].ScreenURL)) {
			best = i
		}
	}
	if best >= 0 {
		return r.screens[best], true
	}
	if owns(SupportPath, p) {
		return Fallback, true
	}
	return api.Screen{}, false
}

// Suggest returns the known route closest to p, or "" when nothing is reasonably close.
func (r *Registry) Suggest(p string) string {
	p = Normalize(p)
	candidates := []string{SupportPath}
	for _, s := range r.List() {
		candidates = append(candidates, Normalize(s.ScreenURL))
	}
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(p, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	// more than half the characters wrong is not a typo
	if bestDist < 0 || bestDist > (len(best)+1)/2 {
		return ""
	}
	return best
}

// Normalize cleans p into an absolute path without a trailing slash.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func owns(prefix, p string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func (r *Registry) set(list []api.Screen) {
	r.mu.Lock()
	r.screens = list
	r.mu.Unlock()
}

// dedupe drops repeated URLs, keeping the first occurrence.
func dedupe(list []api.Screen) []api.Screen {
	seen := make(map[string]bool, len(list))
	out := make([]api.Screen, 0, len(list))
	for _, s := range list {
		key := Normalize(s.ScreenURL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
