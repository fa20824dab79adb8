package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
)

var (
	ErrInvalidPair  = errors.New("invalid trading pair")
	ErrInvalidAlert = errors.New("invalid price alert")
	ErrNoHistory    = errors.New("price history store not configured")
)

const maxHistoryLimit = 1000

// PriceFeed fetches a fresh sample for a pair. Implementations may fail transiently.
type PriceFeed interface {
	FetchPrice(ctx context.Context, pair string) (*models.PriceSample, error)
}

// HistoryStore persists samples for history queries.
type HistoryStore interface {
	Append(ctx context.Context, s *models.PriceSample) error
	// QueryHistory returns the newest limit samples since the cutoff, oldest first.
	QueryHistory(ctx context.Context, pair string, since time.Time, limit int) ([]models.PriceSample, error)
}

type Options struct {
	PollInterval time.Duration
	CacheTTL     time.Duration
	// MaxBackoff caps the delay after consecutive fetch failures.
	MaxBackoff time.Duration
	// HaltAfterFailures stops a pair after that many consecutive failures. <= 0 never halts.
	HaltAfterFailures int
	HistoryLimit      int
	Now               func() time.Time
}

func DefaultOptions() Options {
	return Options{
		PollInterval:      5 * time.Second,
		CacheTTL:          10 * time.Second,
		MaxBackoff:        2 * time.Minute,
		HaltAfterFailures: 20,
		HistoryLimit:      100,
		Now:               time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.CacheTTL
	}
	if o.MaxBackoff < o.PollInterval {
		o.MaxBackoff = max(d.MaxBackoff, o.PollInterval)
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type subscription struct {
	id   string
	pair string
	fn   PriceHandler
}

type alertEntry struct {
	alert  models.PriceAlert
	action AlertAction
}

type cacheEntry struct {
	sample    models.PriceSample
	fetchedAt time.Time
}

type pairTask struct {
	pair   string
	cancel context.CancelFunc
	done   chan struct{}
}

type taskKey struct{}

// ownTask reports whether ctx was handed to a callback by t's own goroutine.
// Stops issued from there cannot wait for t to finish.
func ownTask(ctx context.Context, t *pairTask) bool {
	own, _ := ctx.Value(taskKey{}).(*pairTask)
	return own == t
}

// Engine runs one polling goroutine per watched pair and fans samples out to
// subscribers and one-shot alerts. Collaborators are never called with mu held.
type Engine struct {
	feed  PriceFeed
	store HistoryStore
	opts  Options

	mu       sync.Mutex
	tasks    map[string]*pairTask
	cache    map[string]cacheEntry
	subs     map[string]*subscription
	alerts   map[string]*alertEntry
	handlers []EventHandler
}

func NewEngine(feed PriceFeed, store HistoryStore, opts Options) *Engine {
	return &Engine{
		feed:   feed,
		store:  store,
		opts:   opts.withDefaults(),
		tasks:  make(map[string]*pairTask),
		cache:  make(map[string]cacheEntry),
		subs:   make(map[string]*subscription),
		alerts: make(map[string]*alertEntry),
	}
}

func (e *Engine) log() *logrus.Entry {
	return logger.Component("monitor")
}

func normalizePair(pair string) (string, error) {
	base, quote, err := models.SplitPair(pair)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPair, err)
	}
	return base + "/" + quote, nil
}

// --- lifecycle ---

// StartMonitoring starts a polling task for each pair not already watched.
func (e *Engine) StartMonitoring(pairs ...string) error {
	var errs []error
	for _, raw := range pairs {
		pair, err := normalizePair(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.mu.Lock()
		started := e.startLocked(pair)
		e.mu.Unlock()
		if !started {
			e.log().WithField("pair", pair).Warn("already monitoring pair")
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) startLocked(pair string) bool {
	if _, ok := e.tasks[pair]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &pairTask{pair: pair, cancel: cancel, done: make(chan struct{})}
	e.tasks[pair] = t
	watchedPairs.Inc()
	go e.run(ctx, t)
	return true
}

// StopMonitoring stops the given pairs, or every watched pair when none are
// given, and clears their cache, subscriptions and alerts. It returns once each
// pair's goroutine has exited, unless ctx is the one passed to that pair's own
// callbacks, in which case the pair just runs no further callbacks.
func (e *Engine) StopMonitoring(ctx context.Context, pairs ...string) {
	e.mu.Lock()
	if len(pairs) == 0 {
		for p := range e.tasks {
			pairs = append(pairs, p)
		}
	}
	var stopped []*pairTask
	for _, raw := range pairs {
		pair := models.NormalizePair(raw)
		t, ok := e.tasks[pair]
		if !ok {
			e.log().WithField("pair", pair).Warn("stop requested for pair that is not monitored")
			continue
		}
		e.removeLocked(t)
		stopped = append(stopped, t)
	}
	e.mu.Unlock()

	e.awaitStopped(ctx, stopped)
}

func (e *Engine) removeLocked(t *pairTask) {
	delete(e.tasks, t.pair)
	delete(e.cache, t.pair)
	for id, s := range e.subs {
		if s.pair == t.pair {
			delete(e.subs, id)
		}
	}
	for id, a := range e.alerts {
		if a.alert.Pair == t.pair {
			delete(e.alerts, id)
		}
	}
	watchedPairs.Dec()
}

func (e *Engine) awaitStopped(ctx context.Context, tasks []*pairTask) {
	for _, t := range tasks {
		t.cancel()
		if ownTask(ctx, t) {
			e.log().WithField("pair", t.pair).Info("monitoring stopped from its own callback")
			continue
		}
		<-t.done
		e.log().WithField("pair", t.pair).Info("monitoring stopped")
	}
}

func (e *Engine) IsMonitoring(pair string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tasks[models.NormalizePair(pair)]
	return ok
}

func (e *Engine) WatchedPairs() []string {
	e.mu.Lock()
	out := make([]string, 0, len(e.tasks))
	for p := range e.tasks {
		out = append(out, p)
	}
	e.mu.Unlock()
	sort.Strings(out)
	return out
}

// --- polling ---

func (e *Engine) run(ctx context.Context, t *pairTask) {
	defer close(t.done)
	ctx = context.WithValue(ctx, taskKey{}, t)
	log := e.log().WithField("pair", t.pair)
	log.Info("monitoring started")

	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		sample, err := e.fetch(ctx, t.pair)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			fetchFailuresTotal.WithLabelValues(t.pair).Inc()
			log.WithError(err).WithField("failures", failures).Warn("price fetch failed")
			e.emit(ctx, Event{Type: EventFetchError, Pair: t.pair, Err: err, Failures: failures, Time: e.opts.Now()})
			if ctx.Err() != nil {
				return
			}

			if e.opts.HaltAfterFailures > 0 && failures >= e.opts.HaltAfterFailures {
				e.halt(ctx, t, failures, err)
				return
			}
		} else {
			failures = 0
			e.handleSample(ctx, t, sample)
		}
		timer.Reset(e.nextDelay(failures))
	}
}

// nextDelay doubles the poll interval per consecutive failure, capped at MaxBackoff.
func (e *Engine) nextDelay(failures int) time.Duration {
	d := e.opts.PollInterval
	for i := 0; i < failures && d < e.opts.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, e.opts.MaxBackoff)
}

func (e *Engine) halt(ctx context.Context, t *pairTask, failures int, cause error) {
	e.mu.Lock()
	if e.tasks[t.pair] == t {
		e.removeLocked(t)
	}
	e.mu.Unlock()
	t.cancel()

	e.log().WithField("pair", t.pair).WithField("failures", failures).Error("monitoring halted after repeated fetch failures")
	e.emit(ctx, Event{Type: EventMonitoringHalted, Pair: t.pair, Err: cause, Failures: failures, Time: e.opts.Now()})
}

func (e *Engine) fetch(ctx context.Context, pair string) (*models.PriceSample, error) {
	start := time.Now()
	s, err := e.feed.FetchPrice(ctx, pair)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if s == nil || s.Price <= 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		return nil, fmt.Errorf("feed returned an unusable sample for %s", pair)
	}
	out := *s
	out.Pair = pair
	if out.Timestamp.IsZero() {
		out.Timestamp = e.opts.Now()
	}
	return &out, nil
}

// handleSample runs one tick's fan-out: cache, persist, event, subscribers, alerts.
func (e *Engine) handleSample(ctx context.Context, t *pairTask, s *models.PriceSample) {
	e.mu.Lock()
	if e.tasks[t.pair] != t {
		e.mu.Unlock()
		return
	}
	e.cache[t.pair] = cacheEntry{sample: *s, fetchedAt: e.opts.Now()}
	e.mu.Unlock()
	ticksTotal.WithLabelValues(t.pair).Inc()

	e.persist(ctx, s)

	if ctx.Err() != nil {
		return
	}
	sample := *s
	e.emit(ctx, Event{Type: EventPriceUpdate, Pair: t.pair, Sample: &sample, Time: e.opts.Now()})

	for _, sub := range e.subscribersFor(t.pair) {
		if ctx.Err() != nil {
			return
		}
		e.safeCall("subscriber", t.pair, func() error { return sub.fn(ctx, sample) })
	}

	if ctx.Err() != nil {
		return
	}
	e.evaluateAlerts(ctx, t.pair, sample)
}

func (e *Engine) persist(ctx context.Context, s *models.PriceSample) {
	if e.store == nil {
		return
	}
	if err := e.store.Append(ctx, s); err != nil {
		persistFailuresTotal.Inc()
		e.log().WithError(err).WithField("pair", s.Pair).Warn("failed to persist price sample")
	}
}

func (e *Engine) subscribersFor(pair string) []*subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*subscription
	for _, s := range e.subs {
		if s.pair == pair {
			out = append(out, s)
		}
	}
	return out
}

type firedAlert struct {
	alert  models.PriceAlert
	action AlertAction
}

// evaluateAlerts deactivates every met alert before running any action, so an
// alert can fire at most once.
func (e *Engine) evaluateAlerts(ctx context.Context, pair string, s models.PriceSample) {
	now := e.opts.Now()

	e.mu.Lock()
	var fired []firedAlert
	for _, a := range e.alerts {
		if a.alert.Pair != pair || !a.alert.Active || !a.alert.Met(s.Price) {
			continue
		}
		a.alert.Active = false
		triggered := now
		a.alert.TriggeredAt = &triggered
		fired = append(fired, firedAlert{alert: a.alert, action: a.action})
	}
	e.mu.Unlock()

	slices.SortFunc(fired, func(a, b firedAlert) int { return a.alert.CreatedAt.Compare(b.alert.CreatedAt) })

	for _, f := range fired {
		alertsFiredTotal.WithLabelValues(pair, string(f.alert.Condition)).Inc()
		e.log().WithFields(logrus.Fields{
			"pair":      pair,
			"alert":     f.alert.ID,
			"condition": f.alert.Condition,
			"target":    f.alert.TargetPrice,
			"price":     s.Price,
		}).Info("price alert triggered")

		alert := f.alert
		e.emit(ctx, Event{Type: EventAlertTriggered, Pair: pair, Sample: &s, Alert: &alert, Time: now})
		if f.action != nil && ctx.Err() == nil {
			e.safeCall("alert", pair, func() error { return f.action.Fire(ctx, alert, s) })
		}
	}
}

func (e *Engine) safeCall(kind, pair string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			callbackFailuresTotal.WithLabelValues(kind).Inc()
			e.log().WithFields(logrus.Fields{"pair": pair, "kind": kind}).Errorf("callback panicked: %v", r)
		}
	}()
	if err := fn(); err != nil {
		callbackFailuresTotal.WithLabelValues(kind).Inc()
		e.log().WithFields(logrus.Fields{"pair": pair, "kind": kind}).WithError(err).Warn("callback failed")
	}
}

// --- events ---

func (e *Engine) AddEventHandler(h EventHandler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// emit runs every handler in the emitting pair's goroutine with that task's ctx.
func (e *Engine) emit(ctx context.Context, ev Event) {
	e.mu.Lock()
	handlers := slices.Clone(e.handlers)
	e.mu.Unlock()
	for _, h := range handlers {
		e.safeCall("event", ev.Pair, func() error {
			h(ctx, ev)
			return nil
		})
	}
}

// --- subscriptions ---

// SubscribeToPrice registers fn for every sample of pair and starts monitoring it if needed.
func (e *Engine) SubscribeToPrice(pair string, fn PriceHandler) (string, error) {
	if fn == nil {
		return "", errors.New("subscribe: nil handler")
	}
	p, err := normalizePair(pair)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	e.mu.Lock()
	e.subs[id] = &subscription{id: id, pair: p, fn: fn}
	e.startLocked(p)
	e.mu.Unlock()

	e.log().WithFields(logrus.Fields{"pair": p, "subscription": id}).Debug("price subscription added")
	return id, nil
}

// UnsubscribeFromPrice removes a subscription. The pair stops once it has
// neither subscribers nor active alerts; ctx follows StopMonitoring.
func (e *Engine) UnsubscribeFromPrice(ctx context.Context, id string) bool {
	e.mu.Lock()
	sub, ok := e.subs[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.subs, id)
	stopped := e.stopIfIdleLocked(sub.pair)
	e.mu.Unlock()

	e.awaitStopped(ctx, stopped)
	return true
}

func (e *Engine) SubscriberCount(pair string) int {
	return len(e.subscribersFor(models.NormalizePair(pair)))
}

func (e *Engine) stopIfIdleLocked(pair string) []*pairTask {
	t, ok := e.tasks[pair]
	if !ok {
		return nil
	}
	for _, s := range e.subs {
		if s.pair == pair {
			return nil
		}
	}
	for _, a := range e.alerts {
		if a.alert.Pair == pair && a.alert.Active {
			return nil
		}
	}
	e.removeLocked(t)
	e.log().WithField("pair", pair).Info("no subscribers or alerts left, stopping pair")
	return []*pairTask{t}
}

// --- alerts ---

// AddPriceAlert registers a one-shot alert and starts monitoring the pair if needed.
// A nil action still emits EventAlertTriggered.
func (e *Engine) AddPriceAlert(pair string, cond models.AlertCondition, target float64, action AlertAction) (string, error) {
	p, err := normalizePair(pair)
	if err != nil {
		return "", err
	}
	if cond != models.AlertAbove && cond != models.AlertBelow {
		return "", fmt.Errorf("%w: condition must be above or below, got %q", ErrInvalidAlert, cond)
	}
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return "", fmt.Errorf("%w: target price must be positive", ErrInvalidAlert)
	}

	name := "event"
	if action != nil {
		name = action.Name()
	}
	a := models.PriceAlert{
		ID:          uuid.NewString(),
		Pair:        p,
		Condition:   cond,
		TargetPrice: target,
		Action:      name,
		Active:      true,
		CreatedAt:   e.opts.Now(),
	}

	e.mu.Lock()
	e.alerts[a.ID] = &alertEntry{alert: a, action: action}
	e.startLocked(p)
	e.mu.Unlock()

	e.log().WithFields(logrus.Fields{
		"pair":      p,
		"alert":     a.ID,
		"condition": cond,
		"target":    target,
	}).Info("price alert added")
	return a.ID, nil
}

func (e *Engine) RemovePriceAlert(ctx context.Context, id string) bool {
	e.mu.Lock()
	a, ok := e.alerts[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.alerts, id)
	stopped := e.stopIfIdleLocked(a.alert.Pair)
	e.mu.Unlock()

	e.awaitStopped(ctx, stopped)
	return true
}

// Alerts returns the registered alerts for pair, or for every pair when pair is "".
// Fired alerts stay listed as inactive until removed.
func (e *Engine) Alerts(pair string) []models.PriceAlert {
	if pair != "" {
		pair = models.NormalizePair(pair)
	}
	e.mu.Lock()
	out := make([]models.PriceAlert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if pair == "" || strings.EqualFold(a.alert.Pair, pair) {
			out = append(out, a.alert)
		}
	}
	e.mu.Unlock()
	slices.SortFunc(out, func(a, b models.PriceAlert) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// --- queries ---

// GetCurrentPrice serves from cache while the entry is younger than CacheTTL,
// otherwise fetches out of band and refreshes the cache.
func (e *Engine) GetCurrentPrice(ctx context.Context, pair string) (*models.PriceSample, error) {
	p, err := normalizePair(pair)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	entry, ok := e.cache[p]
	e.mu.Unlock()
	if ok && e.opts.Now().Sub(entry.fetchedAt) < e.opts.CacheTTL {
		s := entry.sample
		return &s, nil
	}

	s, err := e.fetch(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("current price %s: %w", p, err)
	}
	e.mu.Lock()
	e.cache[p] = cacheEntry{sample: *s, fetchedAt: e.opts.Now()}
	e.mu.Unlock()
	return s, nil
}

// GetPriceHistory returns persisted samples inside the timeframe window, newest first.
func (e *Engine) GetPriceHistory(ctx context.Context, pair, timeframe string, limit int) ([]models.PriceSample, error) {
	if e.store == nil {
		return nil, ErrNoHistory
	}
	p, err := normalizePair(pair)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.opts.HistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	since := e.opts.Now().Add(-TimeframeWindow(timeframe))
	samples, err := e.store.QueryHistory(ctx, p, since, limit)
	if err != nil {
		return nil, fmt.Errorf("price history %s: %w", p, err)
	}
	out := slices.Clone(samples)
	slices.Reverse(out)
	return out, nil
}
