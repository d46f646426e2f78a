// Package sessions holds the live editing sessions of this process. The
// registry is bounded; the least recently used session is torn down when a
// new one would exceed the bound.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	obs "github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	"github.com/mohammed-shakir/geofilter-editor/internal/editor"
	mylog "github.com/mohammed-shakir/geofilter-editor/internal/logger"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface/memsurface"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission/kafkaconsumer"
)

const teardownTimeout = 2 * time.Second

var ErrNotFound = errors.New("session not found")

// Entry is one live session and the headless surface it renders to.
type Entry struct {
	Session *editor.Session
	Surface *memsurface.Surface
	Created time.Time
}

// StateForgetter drops per-session state kept outside the process.
type StateForgetter interface {
	Forget(ctx context.Context, session string) error
}

// TokenForgetter drops per-session response dedupe state.
type TokenForgetter interface {
	Forget(session string)
}

// TokenForgetterFunc adapts a function to TokenForgetter.
type TokenForgetterFunc func(session string)

func (f TokenForgetterFunc) Forget(session string) { f(session) }

type Option func(*Registry)

func WithSink(s mapsurface.Sink) Option { return func(r *Registry) { r.sink = s } }

func WithTokenForgetter(f TokenForgetter) Option { return func(r *Registry) { r.tokens = f } }

func WithEditorConfig(c editor.Config) Option { return func(r *Registry) { r.editorCfg = c } }

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithLogSampling logs session lifecycle at Info for 1 in n session ids, and
// at Debug for the rest.
func WithLogSampling(n uint64) Option { return func(r *Registry) { r.sampleN = n } }

type Registry struct {
	entries   *lru.Cache[string, *Entry]
	editorCfg editor.Config
	sink      mapsurface.Sink
	tokens    TokenForgetter
	log       *slog.Logger
	sampleN   uint64
	now       func() time.Time
}

var _ kafkaconsumer.ResponseSink = (*Registry)(nil)

func New(max int, opts ...Option) (*Registry, error) {
	r := &Registry{
		editorCfg: editor.DefaultConfig(),
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	c, err := lru.NewWithEvict[string, *Entry](max, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("session registry: %w", err)
	}
	r.entries = c
	return r, nil
}

func (r *Registry) lifecycleLevel(id string) slog.Level {
	if r.sampleN > 1 && xxhash.Sum64String(id)%r.sampleN != 0 {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Create starts a new session with a fresh id.
func (r *Registry) Create(ctx context.Context) (*Entry, error) {
	id := mylog.NewID()
	log := r.log.With("session_id", id)

	surf := memsurface.New(
		memsurface.WithSession(id),
		memsurface.WithSink(r.sink),
		memsurface.WithLogger(log),
	)
	sess, err := editor.New(ctx, id, surf,
		editor.WithConfig(r.editorCfg),
		editor.WithLogger(r.log),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	e := &Entry{Session: sess, Surface: surf, Created: r.now().UTC()}
	r.entries.Add(id, e)
	n := r.entries.Len()
	obs.SetSessionsActive(n)

	r.log.Log(ctx, r.lifecycleLevel(id), "session created", "session_id", id, "active", n)
	return e, nil
}

func (r *Registry) Get(id string) (*Entry, error) {
	e, ok := r.entries.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return e, nil
}

// Delete removes and tears down a session.
func (r *Registry) Delete(id string) error {
	ok := r.entries.Remove(id)
	n := r.entries.Len()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	obs.SetSessionsActive(n)
	return nil
}

func (r *Registry) Len() int {
	return r.entries.Len()
}

// Close tears down every session.
func (r *Registry) Close() {
	r.entries.Purge()
	obs.SetSessionsActive(0)
}

// onEvict runs for removals and capacity evictions alike, outside the cache lock.
func (r *Registry) onEvict(id string, e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := e.Session.Close(ctx); err != nil {
		r.log.Warn("session teardown failed", "session_id", id, "err", err)
	}
	if f, ok := r.sink.(StateForgetter); ok {
		if err := f.Forget(ctx, id); err != nil {
			r.log.Warn("forget overlay state failed", "session_id", id, "err", err)
		}
	}
	if r.tokens != nil {
		r.tokens.Forget(id)
	}
	r.log.Log(ctx, r.lifecycleLevel(id), "session closed", "session_id", id)
}

// DeliverResponse applies a downstream response to its session. Unknown
// sessions, stale tokens and error responses are skipped.
func (r *Registry) DeliverResponse(ctx context.Context, ev submission.ResponseEvent) error {
	e, err := r.Get(ev.SessionID)
	if err != nil {
		return fmt.Errorf("%w: %w", kafkaconsumer.ErrSkip, err)
	}
	if ev.Status != submission.StatusOK {
		r.log.WarnContext(ctx, "downstream request failed",
			"session_id", ev.SessionID, "token", ev.Token, "error", ev.Error)
		return fmt.Errorf("%w: response status %s", kafkaconsumer.ErrSkip, ev.Status)
	}
	if err := e.Session.ResponseReceived(ev.Token); err != nil {
		if errors.Is(err, editor.ErrStaleResponse) || errors.Is(err, editor.ErrClosed) {
			return fmt.Errorf("%w: %w", kafkaconsumer.ErrSkip, err)
		}
		return fmt.Errorf("apply response: %w", err)
	}
	return nil
}
