package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pulsehub/internal/executor"
	"pulsehub/internal/metrics"
	"pulsehub/internal/signal"
	"pulsehub/pkg/constraints"
	"pulsehub/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTopicNotFound = errors.New("topic not found")
	ErrTypeMismatch  = errors.New("topic value type mismatch")
	// ErrNoValue is returned by latest reads on a topic that stopped before
	// producing anything.
	ErrNoValue = errors.New("topic closed without a value")
)

// entry is the type-erased view of a topic the registry stores.
type entry interface {
	ref() Ref
	meta() Meta
	state() signal.State
	latest(ctx context.Context) (any, error)
	// watch returns a cursor whose first change is the current value, if any.
	watch() anyCursor
}

type anyCursor interface {
	Latest(ctx context.Context) (any, error)
}

type cellHolder[O any] interface {
	cell() *signal.Cell[O]
}

type topic[I, O any] struct {
	key    Key[O]
	md     Meta
	engine *signal.Engine[I, O]
	ended  sync.Once
}

func (t *topic[I, O]) ref() Ref { return t.key.ref }
func (t *topic[I, O]) meta() Meta { return t.md }
func (t *topic[I, O]) state() signal.State { return t.engine.Cell().State() }
func (t *topic[I, O]) cell() *signal.Cell[O] { return t.engine.Cell() }

func (t *topic[I, O]) latest(ctx context.Context) (any, error) {
	v, err := t.engine.Cell().Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// watch starts one change back so a new forwarder first delivers the
// current value. On a terminated topic that is the last good value, followed
// by the terminal error.
func (t *topic[I, O]) watch() anyCursor {
	c := t.engine.Cell()
	seq := c.Seq()
	if seq > 0 {
		seq--
	}
	return typedCursor[O]{c.SubscribeFrom(seq)}
}

type typedCursor[O any] struct {
	c *signal.Cursor[O]
}

func (tc typedCursor[O]) Latest(ctx context.Context) (any, error) {
	return tc.c.Latest(ctx)
}

// Hub owns every topic and the key log. Registration is insert-only: keys
// are never replaced or removed.
type Hub struct {
	rt          *executor.Runtime
	ownsRuntime bool
	t0          time.Time

	mu     sync.RWMutex
	topics map[uuid.UUID]entry
	keys   *KeyLog

	observer        metrics.HubObserver
	diagnostic      func(string)
	snapshotTimeout time.Duration
	historySize     int
	hooks           []func(TopicInfo)
}

type Option func(*Hub)

// WithRuntime schedules the hub's work on rt. The caller keeps ownership.
func WithRuntime(rt *executor.Runtime) Option {
	return func(h *Hub) { h.rt = rt }
}

func WithObserver(o metrics.HubObserver) Option {
	return func(h *Hub) { h.observer = o }
}

// WithDiagnostic replaces the sink for subscription lifecycle notices.
func WithDiagnostic(fn func(string)) Option {
	return func(h *Hub) { h.diagnostic = fn }
}

// WithSnapshotTimeout bounds each per-key fetch of a snapshot.
func WithSnapshotTimeout(d time.Duration) Option {
	return func(h *Hub) { h.snapshotTimeout = d }
}

// WithHistorySize sets how many changes each topic keeps for slow readers.
func WithHistorySize(n int) Option {
	return func(h *Hub) { h.historySize = n }
}

// WithRegistrationHook calls fn after every topic registration.
func WithRegistrationHook(fn func(TopicInfo)) Option {
	return func(h *Hub) { h.hooks = append(h.hooks, fn) }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		t0:              time.Now(),
		topics:          make(map[uuid.UUID]entry),
		keys:            newKeyLog(),
		observer:        metrics.Nop(),
		diagnostic:      logger.Console,
		snapshotTimeout: 100 * time.Millisecond,
		historySize:     256,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.rt == nil {
		h.rt = executor.NewRuntime(executor.DefaultConfig())
		h.ownsRuntime = true
	}
	return h
}

// Close shuts down the runtime if the hub created it.
func (h *Hub) Close(ctx context.Context) error {
	if !h.ownsRuntime {
		return nil
	}
	return h.rt.Shutdown(ctx)
}

func (h *Hub) Runtime() *executor.Runtime {
	return h.rt
}

// Elapsed is the monotonic time since the hub started.
func (h *Hub) Elapsed() time.Duration {
	return time.Since(h.t0)
}

func (h *Hub) Keys() *KeyLog {
	return h.keys
}

func (h *Hub) register(e entry) {
	h.mu.Lock()
	h.topics[e.ref().ID] = e
	h.mu.Unlock()

	// the key only becomes visible once it can be resolved
	h.keys.append(e.ref())
	h.observer.TopicRegistered()

	info := TopicInfo{Key: e.ref(), Meta: e.meta(), State: e.state().String()}
	for _, hook := range h.hooks {
		hook(info)
	}
	logger.Debug("topic registered",
		zap.String("label", info.Key.Label),
		zap.String("id", info.Key.ID.String()),
		zap.String("units", string(info.Meta.Units)))
}

func (h *Hub) lookup(ref Ref) (entry, error) {
	h.mu.RLock()
	e, ok := h.topics[ref.ID]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, ref)
	}
	return e, nil
}

// NewTopic registers a topic that reduces published inputs through t and
// returns its key and publisher. Labels need not be unique.
func NewTopic[I, O any](h *Hub, label string, units constraints.Units, t signal.Transducer[I, O]) (Key[O], *Publisher[I, O]) {
	key := Key[O]{ref: Ref{ID: uuid.New(), Label: label}}
	tp := &topic[I, O]{
		key: key,
		md: Meta{
			Reportable: constraints.KindOf[O](),
			Units:      units,
			Created:    time.Now(),
		},
		engine: signal.NewEngine(t, h.rt.Compute, signal.WithHistory(h.historySize)),
	}
	h.register(tp)
	return key, &Publisher[I, O]{hub: h, topic: tp}
}

// Get returns the value cell behind key.
func Get[O any](h *Hub, key Key[O]) (*signal.Cell[O], error) {
	e, err := h.lookup(key.ref)
	if err != nil {
		return nil, err
	}
	holder, ok := e.(cellHolder[O])
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrTypeMismatch, key.ref, e.meta().Reportable)
	}
	return holder.cell(), nil
}

// MustGet is Get for call sites where an unknown key is a programming error.
func MustGet[O any](h *Hub, key Key[O]) *signal.Cell[O] {
	c, err := Get(h, key)
	if err != nil {
		panic(err)
	}
	return c
}

func (h *Hub) Meta(ref Ref) (Meta, error) {
	e, err := h.lookup(ref)
	if err != nil {
		return Meta{}, err
	}
	return e.meta(), nil
}

func (h *Hub) Units(ref Ref) (constraints.Units, error) {
	md, err := h.Meta(ref)
	return md.Units, err
}

func (h *Hub) TypeOf(ref Ref) (constraints.Kind, error) {
	md, err := h.Meta(ref)
	return md.Reportable, err
}

// Latest blocks until key has a value and returns the most recent one.
func Latest[O any](ctx context.Context, h *Hub, key Key[O]) (O, error) {
	c, err := Get(h, key)
	if err != nil {
		var zero O
		return zero, err
	}
	v, err := c.Wait(ctx)
	if errors.Is(err, signal.ErrClosed) {
		err = ErrNoValue
	}
	return v, err
}

// LatestAny is Latest for callers that only hold a Ref.
func (h *Hub) LatestAny(ctx context.Context, ref Ref) (Datapoint, error) {
	e, err := h.lookup(ref)
	if err != nil {
		return Datapoint{}, err
	}
	v, err := e.latest(ctx)
	if errors.Is(err, signal.ErrClosed) {
		err = ErrNoValue
	}
	if err != nil {
		return Datapoint{}, err
	}
	return h.datapoint(e, v), nil
}

func (h *Hub) datapoint(e entry, v any) Datapoint {
	md := e.meta()
	return Datapoint{
		Key:        e.ref(),
		Reportable: md.Reportable,
		Units:      md.Units,
		Value:      v,
		Time:       time.Now(),
	}
}

// Topics lists every registered topic in creation order.
func (h *Hub) Topics() []TopicInfo {
	refs := h.keys.Snapshot()
	out := make([]TopicInfo, 0, len(refs))
	for _, ref := range refs {
		e, err := h.lookup(ref)
		if err != nil {
			continue
		}
		out = append(out, TopicInfo{Key: ref, Meta: e.meta(), State: e.state().String()})
	}
	return out
}

// FindByLabel returns the refs registered under label, oldest first.
func (h *Hub) FindByLabel(label string) []Ref {
	var out []Ref
	for _, ref := range h.keys.Snapshot() {
		if ref.Label == label {
			out = append(out, ref)
		}
	}
	return out
}

// ParseRef resolves a topic id string.
func (h *Hub) ParseRef(id string) (Ref, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: invalid id %q", ErrTopicNotFound, id)
	}
	h.mu.RLock()
	e, ok := h.topics[uid]
	h.mu.RUnlock()
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return e.ref(), nil
}
