package profile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/sos-core/internal/core/observability"
)

// Source tells where an activation came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

type Options struct {
	Logger *slog.Logger
	Store  Store
	// Sources are walked for files named profiles.json, in order.
	Sources      []fs.FS
	PersistDelay time.Duration
}

// Handler owns the known profiles. Mutations go through Activate and Put;
// every mutation schedules a debounced write of the full collection.
type Handler struct {
	log     *slog.Logger
	store   Store
	sources []fs.FS
	delay   time.Duration

	mu       sync.RWMutex
	profiles map[string]Profile
	active   string
	subs     []chan Profile
	listener func(ctx context.Context, p Profile)
	closed   bool

	persistMu sync.Mutex
	timer     *time.Timer
	dirty     bool
	timerRuns sync.WaitGroup

	// saveMu orders snapshot and Save across concurrent flushes.
	saveMu sync.Mutex
}

// New returns a handler holding only the default profile.
func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = NopStore{}
	}
	d := Default()
	return &Handler{
		log:      opts.Logger,
		store:    opts.Store,
		sources:  opts.Sources,
		delay:    opts.PersistDelay,
		profiles: map[string]Profile{d.Identifier: d},
		active:   d.Identifier,
	}
}

// OnLocalActivation registers fn to run after each local activation. Remote
// activations do not trigger it.
func (h *Handler) OnLocalActivation(fn func(ctx context.Context, p Profile)) {
	h.mu.Lock()
	h.listener = fn
	h.mu.Unlock()
}

// Load reads the bundled sources and then the configuration store. A
// profile defined twice is replaced by the later definition.
func (h *Handler) Load(ctx context.Context) error {
	var sources []source
	for _, fsys := range h.sources {
		found, err := collect(fsys)
		if err != nil {
			return fmt.Errorf("scan profile sources: %w", err)
		}
		sources = append(sources, found...)
	}

	start := time.Now()
	blob, err := h.store.Load(ctx)
	observability.ObserveProfileStoreOp("load", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("load profile store: %w", err)
	}
	if len(blob) > 0 {
		sources = append(sources, source{name: "store", data: blob})
	}

	loadedFrom := map[string]string{}
	var loaded []Profile
	for _, src := range sources {
		ps, err := Decode(src.data)
		if err != nil {
			return fmt.Errorf("%s: %w", src.name, err)
		}
		for _, p := range ps {
			if prev, ok := loadedFrom[p.Identifier]; ok {
				h.log.Warn("profile defined more than once; last definition wins",
					"profile", p.Identifier, "previous", prev, "source", src.name)
			}
			loadedFrom[p.Identifier] = src.name
			loaded = append(loaded, p.Clone())
		}
	}

	h.mu.Lock()
	activeID := h.active
	for _, p := range loaded {
		h.profiles[p.Identifier] = p
		if p.Active {
			activeID = p.Identifier
		}
	}
	if _, ok := h.profiles[activeID]; !ok {
		activeID = DefaultIdentifier
	}
	h.setActiveLocked(activeID)
	active := h.profiles[activeID]
	count := len(h.profiles)
	h.mu.Unlock()

	h.log.Info("profiles loaded", "count", count, "active", active.Identifier, "sources", len(sources))
	h.notify(active)
	return nil
}

// setActiveLocked flips the active flag of every profile so only id holds it.
func (h *Handler) setActiveLocked(id string) {
	for k, p := range h.profiles {
		p.Active = k == id
		h.profiles[k] = p
	}
	h.active = id
}

func (h *Handler) Active() Profile {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.profiles[h.active].Clone()
}

func (h *Handler) Get(id string) (Profile, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.profiles[strings.TrimSpace(id)]
	if !ok {
		return Profile{}, false
	}
	return p.Clone(), true
}

// List returns all profiles sorted by identifier.
func (h *Handler) List() []Profile {
	h.mu.RLock()
	out := make([]Profile, 0, len(h.profiles))
	for _, p := range h.profiles {
		out = append(out, p.Clone())
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Activate makes id the only active profile.
func (h *Handler) Activate(ctx context.Context, id string) (Profile, error) {
	return h.ActivateFrom(ctx, id, SourceLocal)
}

// ActivateFrom is Activate with the origin of the request recorded. Only
// local activations reach the activation listener.
func (h *Handler) ActivateFrom(ctx context.Context, id string, src Source) (Profile, error) {
	id = strings.TrimSpace(id)
	h.mu.Lock()
	if _, ok := h.profiles[id]; !ok {
		h.mu.Unlock()
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, id)
	}
	changed := h.active != id
	h.setActiveLocked(id)
	active := h.profiles[id].Clone()
	listener := h.listener
	h.mu.Unlock()

	observability.IncProfileActivation(string(src))
	h.log.Info("profile activated", "profile", id, "source", src, "changed", changed)

	if changed {
		h.schedulePersist(ctx)
		h.notify(active)
	}
	if src == SourceLocal && listener != nil {
		listener(ctx, active)
	}
	return active, nil
}

// Put inserts or replaces a profile. An active p takes over the active flag;
// the currently active profile cannot be made inactive through Put.
func (h *Handler) Put(ctx context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Clone()
	p.Identifier = strings.TrimSpace(p.Identifier)

	h.mu.Lock()
	h.profiles[p.Identifier] = p
	changed := false
	switch {
	case p.Active && h.active != p.Identifier:
		h.setActiveLocked(p.Identifier)
		changed = true
	case p.Identifier == h.active:
		p.Active = true
		h.profiles[p.Identifier] = p
		changed = true
	}
	active := h.profiles[h.active].Clone()
	h.mu.Unlock()

	h.schedulePersist(ctx)
	if changed {
		h.notify(active)
	}
	return nil
}

// Subscribe returns a channel receiving the active profile after every
// change. Slow readers miss intermediate updates.
func (h *Handler) Subscribe() <-chan Profile {
	ch := make(chan Profile, 1)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	h.subs = append(h.subs, ch)
	cur := h.profiles[h.active].Clone()
	h.mu.Unlock()

	select {
	case ch <- cur:
	default:
	}
	return ch
}

func (h *Handler) notify(p Profile) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

func (h *Handler) schedulePersist(ctx context.Context) {
	if h.delay <= 0 {
		if err := h.Flush(ctx); err != nil {
			h.log.Error("profile persist failed", "err", err)
		}
		return
	}
	h.persistMu.Lock()
	defer h.persistMu.Unlock()
	h.dirty = true
	if h.timer != nil {
		return
	}
	h.timerRuns.Add(1)
	h.timer = time.AfterFunc(h.delay, func() {
		defer h.timerRuns.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Flush(ctx); err != nil {
			h.log.Error("profile persist failed", "err", err)
		}
	})
}

// stopTimerLocked cancels a scheduled write that has not started. Callers
// hold persistMu.
func (h *Handler) stopTimerLocked() {
	if h.timer == nil {
		return
	}
	if h.timer.Stop() {
		h.timerRuns.Done()
	}
	h.timer = nil
}

// Flush writes the full collection to the store now. Writes are serialized
// and each one snapshots the collection after the previous write finished,
// so the store never ends up older than memory.
func (h *Handler) Flush(ctx context.Context) error {
	h.saveMu.Lock()
	defer h.saveMu.Unlock()

	h.persistMu.Lock()
	h.stopTimerLocked()
	h.dirty = false
	h.persistMu.Unlock()

	data, err := Encode(h.List())
	if err != nil {
		return err
	}
	start := time.Now()
	err = h.store.Save(ctx, data)
	observability.ObserveProfileStoreOp("save", err, time.Since(start).Seconds())
	if err != nil {
		h.persistMu.Lock()
		h.dirty = true
		h.persistMu.Unlock()
		return fmt.Errorf("save profiles: %w", err)
	}
	h.log.Debug("profiles persisted", "bytes", len(data))
	return nil
}

// Pending reports whether a change has not been written yet.
func (h *Handler) Pending() bool {
	h.persistMu.Lock()
	defer h.persistMu.Unlock()
	return h.dirty
}

// Close writes pending changes, waits for a write already in progress and
// closes subscriber channels. The store may be closed once Close returns.
func (h *Handler) Close(ctx context.Context) error {
	var err error
	if h.Pending() {
		err = h.Flush(ctx)
	} else {
		h.persistMu.Lock()
		h.stopTimerLocked()
		h.persistMu.Unlock()
	}
	h.timerRuns.Wait()
	// a direct Flush may still be inside Save
	h.saveMu.Lock()
	h.saveMu.Unlock()

	h.mu.Lock()
	if !h.closed {
		h.closed = true
		for _, ch := range h.subs {
			close(ch)
		}
		h.subs = nil
	}
	h.mu.Unlock()
	return err
}
