// Package remote loads an independently deployed UI module at runtime. The module's
// entry script is fetched, evaluated in a sandboxed JS VM, and its exposed factory names
// a host component to mount. Any failure resolves to a fixed fallback view.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jask/flowbit/internal/metrics"
)

// State is the loader's position in a load attempt.
type State int32

const (
	Idle State = iota
	Injecting
	WaitingForRegistration
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Injecting:
		return "injecting"
	case WaitingForRegistration:
		return "waiting"
	case Resolved:
		return "resolved"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	ErrScriptLoad       = errors.New("remote: entry script failed to load")
	ErrUnknownComponent = errors.New("remote: component not in host catalog")
)

// Config describes where the remote lives and how long to wait for it.
type Config struct {
	EntryURL string
	Name     string
	Module   string
	// Grace is the pause between script load and import.
	Grace time.Duration
	// Timeout bounds the script fetch and each VM evaluation.
	Timeout time.Duration
}

// Handle is a resolved load. A loaded handle mounts the remote component; a failed
// one mounts the fallback.
type Handle struct {
	AttemptID  string
	Descriptor Descriptor
	Err        error

	entryURL string
	factory  Factory
}

// Loaded reports whether the remote module resolved.
func (h Handle) Loaded() bool { return h.Err == nil && h.factory != nil }

// Mount builds a fresh view for one navigation. It never returns nil.
func (h Handle) Mount(ctx context.Context) View {
	if !h.Loaded() {
		return NewFallbackView(h.entryURL, h.Err)
	}
	v, err := h.factory(ctx, h.Descriptor.Props)
	if err != nil || v == nil {
		if err == nil {
			err = fmt.Errorf("remote: %q mounted nothing", h.Descriptor.Component)
		}
		return NewFallbackView(h.entryURL, fmt.Errorf("remote: mount %q: %w", h.Descriptor.Component, err))
	}
	return v
}

// Loader resolves the remote module. It keeps nothing between attempts.
type Loader struct {
	cfg     Config
	http    *http.Client
	catalog Catalog
	log     *logrus.Logger
	state   atomic.Int32
}

func NewLoader(cfg Config, catalog Catalog, httpClient *http.Client, log *logrus.Logger) *Loader {
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Loader{cfg: cfg, http: httpClient, catalog: catalog, log: log}
}

// State reports the current attempt's state.
func (l *Loader) State() State { return State(l.state.Load()) }

// Load runs one attempt from Idle to Resolved. On failure Err says why and Mount
// yields the fallback view.
func (l *Loader) Load(ctx context.Context) Handle {
	attempt := uuid.NewString()
	log := l.log.WithField("attempt", attempt).WithField("entry", l.cfg.EntryURL)
	start := time.Now()

	h, err := l.load(ctx, log)
	l.setState(Resolved)
	h.AttemptID = attempt
	h.entryURL = l.cfg.EntryURL
	if err != nil {
		h = Handle{AttemptID: attempt, Err: err, entryURL: l.cfg.EntryURL}
		if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			metrics.RecordRemoteLoad("fallback")
			log.WithError(err).Warn("remote module unavailable")
		}
		return h
	}
	metrics.RecordRemoteLoad("success")
	log.WithField("component", h.Descriptor.Component).WithField("elapsed", time.Since(start)).Info("remote module loaded")
	return h
}

func (l *Loader) load(ctx context.Context, log *logrus.Entry) (Handle, error) {
	l.setState(Injecting)
	script, err := l.fetch(ctx)
	if err != nil {
		return Handle{}, err
	}

	e, err := newEntry(log)
	if err != nil {
		return Handle{}, err
	}
	if err := e.run(ctx, script, l.cfg.Timeout); err != nil {
		return Handle{}, err
	}

	l.setState(WaitingForRegistration)
	if l.cfg.Grace > 0 {
		t := time.NewTimer(l.cfg.Grace)
		select {
		case <-ctx.Done():
			t.Stop()
			return Handle{}, ctx.Err()
		case <-t.C:
		}
	}
	e.advance(ctx, l.cfg.Grace, l.cfg.Timeout)

	desc, err := e.importModule(ctx, l.cfg.Name, l.cfg.Module, l.cfg.Timeout)
	if err != nil {
		return Handle{}, err
	}
	factory, ok := l.catalog[desc.Component]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownComponent, desc.Component)
	}
	return Handle{Descriptor: desc, factory: factory}, nil
}

// fetch is the "script tag": exactly one GET per attempt, never cached.
func (l *Loader) fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.EntryURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrScriptLoad, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := l.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrScriptLoad, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrScriptLoad, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxScriptSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrScriptLoad, err)
	}
	return string(data), nil
}

func (l *Loader) setState(s State) { l.state.Store(int32(s)) }
