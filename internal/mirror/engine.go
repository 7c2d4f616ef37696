// Package mirror keeps a local copy of OBS's scenes, audio sources and
// output status, reconciled from full snapshots and patched by push events.
package mirror

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/metrics"
)

// DefaultScreenshotIdleEvery is how many refresh ticks pass between
// screenshots of scenes that are neither program nor preview.
const DefaultScreenshotIdleEvery = 3

// Options configures an Engine.
type Options struct {
	Log         zerolog.Logger
	SceneHooks  Hooks[*Scene]
	AudioHooks  Hooks[*AudioSource]
	FilterHooks Hooks[*Filter]
	// OnChange is called after any mirrored state changed, outside the lock.
	OnChange func()
	// ScreenshotIdleEvery defaults to DefaultScreenshotIdleEvery; negative
	// disables screenshots of idle scenes.
	ScreenshotIdleEvery int
	// ScreenshotWidth defaults to 250 pixels.
	ScreenshotWidth int
}

// Engine mirrors OBS state. Snapshot fetches run outside the lock; each
// snapshot is applied atomically under it.
type Engine struct {
	caller client.Caller
	log    zerolog.Logger
	opts   Options

	mu         sync.Mutex
	ctx        context.Context // of the current connection
	scenes     *Collection[*Scene]
	audio      *Collection[*AudioSource]
	program    string
	preview    string
	studioMode bool
	status     Status
	ticks      int
}

// NewEngine creates an engine issuing requests through caller.
func NewEngine(caller client.Caller, opts Options) *Engine {
	if opts.ScreenshotIdleEvery == 0 {
		opts.ScreenshotIdleEvery = DefaultScreenshotIdleEvery
	}
	if opts.ScreenshotWidth == 0 {
		opts.ScreenshotWidth = 250
	}
	e := &Engine{
		caller: caller,
		log:    opts.Log.With().Str("component", "mirror").Logger(),
		opts:   opts,
		ctx:    context.Background(),
	}
	sceneHooks := opts.SceneHooks
	sceneHooks.Added = chain(sceneHooks.Added, func(s *Scene) {
		e.log.Debug().Str("scene", s.Name).Msg("scene added")
	})
	sceneHooks.Removed = chain(sceneHooks.Removed, func(s *Scene) {
		e.log.Debug().Str("scene", s.Name).Msg("scene removed")
	})
	audioHooks := opts.AudioHooks
	audioHooks.Added = chain(audioHooks.Added, func(a *AudioSource) {
		e.log.Debug().Str("source", a.Name).Msg("audio source added")
	})
	audioHooks.Removed = chain(audioHooks.Removed, func(a *AudioSource) {
		e.log.Debug().Str("source", a.Name).Msg("audio source removed")
	})
	e.scenes = NewCollection(sceneHooks)
	e.audio = NewCollection(audioHooks)
	return e
}

func chain[E any](first, then func(E)) func(E) {
	if first == nil {
		return then
	}
	return func(v E) {
		first(v)
		then(v)
	}
}

// Connected starts a full sync for the new connection. It returns at once.
func (e *Engine) Connected(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	go func() {
		if err := e.SyncAll(ctx); err != nil {
			e.log.Warn().Err(err).Msg("initial sync incomplete")
		}
	}()
}

// Disconnected keeps the mirrored state for display; it is confirmed or
// replaced by the sync after the next connect.
func (e *Engine) Disconnected(client.DisconnectInfo) {
	e.mu.Lock()
	e.ctx = context.Background()
	e.mu.Unlock()
}

func (e *Engine) connCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// spawn runs fn on its own goroutine with the connection context. Event
// listeners use it so they never block the dispatch goroutine on a round trip.
func (e *Engine) spawn(what string, fn func(ctx context.Context) error) {
	ctx := e.connCtx()
	go func() {
		if err := fn(ctx); err != nil {
			e.log.Debug().Err(err).Str("task", what).Msg("background refresh failed")
		}
	}()
}

// stateReporter is implemented by callers that know whether they are
// authenticated, such as client.Session.
type stateReporter interface {
	State() client.State
}

// online reports whether commands can currently reach OBS. Callers that
// cannot tell are assumed online.
func (e *Engine) online() bool {
	r, ok := e.caller.(stateReporter)
	return !ok || r.State() == client.StateAuthenticated
}

func (e *Engine) changed() {
	if e.opts.OnChange != nil {
		e.opts.OnChange()
	}
}

// SyncAll runs every snapshot fetch the panel needs after connecting.
func (e *Engine) SyncAll(ctx context.Context) error {
	errs := []error{
		e.RefreshVideoInfo(ctx),
		e.RefreshStudioMode(ctx),
		e.ResyncScenes(ctx),
		e.ResyncAudio(ctx),
		e.RefreshVirtualCam(ctx),
		e.RefreshStatus(ctx),
	}
	return errors.Join(errs...)
}

// Refresh is the periodic poll: output status, filter settings and scene
// screenshots.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	e.ticks++
	e.mu.Unlock()

	if err := e.RefreshStatus(ctx); err != nil {
		e.log.Debug().Err(err).Msg("status refresh failed")
	}
	if err := e.RefreshFilters(ctx); err != nil {
		e.log.Debug().Err(err).Msg("filter refresh failed")
	}
	if err := e.RefreshScreenshots(ctx); err != nil {
		e.log.Debug().Err(err).Msg("screenshot refresh failed")
	}
}

// Subscribe registers the engine's incremental handlers on r.
func (e *Engine) Subscribe(r *client.Router) {
	client.Handle(r, e.onSwitchScenes)
	client.Handle(r, e.onPreviewSceneChanged)
	client.Handle(r, e.onScenesChanged)
	client.Handle(r, e.onStudioModeSwitched)
	client.Handle(r, e.onSourceCreated)
	client.Handle(r, e.onSourceDestroyed)
	client.Handle(r, e.onSourceRenamed)
	client.Handle(r, e.onVolumeChanged)
	client.Handle(r, e.onMuteChanged)
	client.Handle(r, e.onMixersChanged)
	client.Handle(r, e.onVisibilityChanged)
	client.Handle(r, e.onFilterAdded)
	client.Handle(r, e.onFilterRemoved)
	client.Handle(r, e.onFiltersReordered)
	client.Handle(r, e.onFilterVisibilityChanged)
	for _, name := range client.OutputEventNames {
		r.On(name, e.onOutputEvent)
	}
}

func (e *Engine) record(collection string, err error) error {
	metrics.RecordResync(collection, err)
	if err != nil {
		e.log.Warn().Err(err).Str("collection", collection).Msg("resync failed, keeping previous state")
	}
	return err
}

// call issues a request and turns an error result into a Go error.
func (e *Engine) call(ctx context.Context, command string, params client.Params, out any) error {
	res := e.caller.Call(ctx, command, params)
	if !res.OK() {
		return errors.New(command + ": " + res.Error)
	}
	if out == nil {
		return nil
	}
	return res.Decode(out)
}
