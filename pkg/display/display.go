// Package display keeps one live view of market quotes current by polling a
// marketdata.Client on a fixed interval.
//
// Only the first fetch after Mount can put the view into the error state.
// Later failures are logged and counted while a good snapshot stays on
// screen. Overlapping fetches are not serialized: whichever response
// resolves last replaces the snapshot, even if it was issued earlier.
package display

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/alim08/tradesite/pkg/format"
	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/marketdata"
	"github.com/alim08/tradesite/pkg/metrics"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/upstream"
	"go.uber.org/zap"
)

// FetchStatus is the display's current state.
type FetchStatus string

const (
	StatusUnmounted FetchStatus = "unmounted"
	StatusLoading   FetchStatus = "loading"
	StatusError     FetchStatus = "error"
	StatusReady     FetchStatus = "ready"
)

// Translation keys used when the upstream gives no message of its own.
const (
	ErrorKeyGeneric = "market.errorGeneric"
	ErrorKeyFetch   = "market.errorFetch"
)

// ErrAlreadyMounted is returned by Mount on a mounted display.
var ErrAlreadyMounted = errors.New("display already mounted")

type phase string

const (
	phaseInitial  phase = "initial"
	phasePeriodic phase = "periodic"
)

// Option configures a Display.
type Option func(*Display)

// WithAssets enables the logo existence check against assets, which must
// contain images/<symbol>.png files.
func WithAssets(assets fs.FS) Option {
	return func(d *Display) { d.assets = assets }
}

// WithSnapshotHook registers fn to run after every change a fetch makes to
// the view: each accepted snapshot and each update of the error state. Hooks
// of one display run one at a time and never see a view older than one they
// were already given.
func WithSnapshotHook(fn func(View)) Option {
	return func(d *Display) { d.hooks = append(d.hooks, fn) }
}

// Display is one mountable instance of a live quote view. Each instance owns
// its status, snapshot and image failure set.
type Display struct {
	name     string
	client   marketdata.Client
	policy   format.Policy
	interval time.Duration
	assets   fs.FS
	hooks    []func(View)
	now      func() time.Time

	mu       sync.RWMutex
	mounts   uint64 // total mounts; never reused as a generation
	gen      uint64 // generation of the live mount, 0 when unmounted
	status   FetchStatus
	errMsg   string
	errKey   string
	snapshot []models.MarketQuote
	updated  time.Time
	seq      uint64
	logos    *logoResolver
	cancel   context.CancelFunc

	hookMu sync.Mutex
	hooked uint64 // Seq of the last view handed to hooks

	loop     sync.WaitGroup
	inflight sync.WaitGroup
}

// New creates an unmounted display.
func New(name string, client marketdata.Client, policy format.Policy, interval time.Duration, opts ...Option) *Display {
	d := &Display{
		name:     name,
		client:   client,
		policy:   policy,
		interval: interval,
		now:      time.Now,
		status:   StatusUnmounted,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the view name.
func (d *Display) Name() string { return d.name }

// Status returns the current status.
func (d *Display) Status() FetchStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Mount enters the loading state, issues one fetch immediately and then one
// per interval until Unmount or ctx is done.
func (d *Display) Mount(ctx context.Context) error {
	d.mu.Lock()
	if d.gen != 0 {
		d.mu.Unlock()
		return ErrAlreadyMounted
	}
	d.mounts++
	gen := d.mounts
	d.gen = gen
	d.status = StatusLoading
	d.errMsg, d.errKey = "", ""
	d.snapshot = nil
	d.updated = time.Time{}
	d.logos = &logoResolver{
		assets:   d.assets,
		failures: NewImageFailureSet(),
		onFail: func(symbol, source string) {
			metrics.LogoFailures.WithLabelValues(d.name, source).Inc()
			logger.Log.Debug("logo unavailable", zap.String("view", d.name),
				zap.String("symbol", symbol), zap.String("source", source))
		},
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	d.loop.Add(1)
	go d.run(loopCtx, gen)

	logger.Log.Info("market display mounted",
		zap.String("view", d.name),
		zap.Duration("interval", d.interval),
		zap.Stringer("policy", d.policy))
	return nil
}

// Unmount stops the timer. Fetches already in flight are not aborted; their
// results are dropped. Calling Unmount on an unmounted display is a no-op.
func (d *Display) Unmount() {
	d.mu.Lock()
	if d.gen == 0 {
		d.mu.Unlock()
		return
	}
	d.gen = 0
	d.cancel()
	d.cancel = nil
	d.status = StatusUnmounted
	d.snapshot = nil
	d.errMsg, d.errKey = "", ""
	d.mu.Unlock()

	d.loop.Wait()
	metrics.MarketSnapshotSize.WithLabelValues(d.name).Set(0)
	logger.Log.Info("market display unmounted", zap.String("view", d.name))
}

// run is the refresh loop of one mount.
func (d *Display) run(ctx context.Context, gen uint64) {
	defer d.loop.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Fetch immediately on mount.
	d.launch(ctx, gen, phaseInitial)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.launch(ctx, gen, phasePeriodic)
		}
	}
}

// launch starts one fetch without waiting for the previous one.
func (d *Display) launch(ctx context.Context, gen uint64, ph phase) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.fetch(context.WithoutCancel(ctx), gen, ph)
	}()
}

// fetch performs one fetch and applies its result to generation gen.
func (d *Display) fetch(ctx context.Context, gen uint64, ph phase) {
	start := time.Now()
	quotes, err := d.client.FetchQuotes(ctx)
	metrics.MarketPollLatency.WithLabelValues(d.name).Observe(time.Since(start).Seconds())
	metrics.MarketPolls.WithLabelValues(d.name, string(ph), metrics.Status(err)).Inc()
	d.apply(gen, ph, quotes, err)
}

// apply moves the state machine for one fetch result.
func (d *Display) apply(gen uint64, ph phase, quotes []models.MarketQuote, err error) {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		logger.Log.Debug("dropping market result for stale mount", zap.String("view", d.name))
		return
	}

	if err == nil {
		d.snapshot = quotes
		d.status = StatusReady
		d.errMsg, d.errKey = "", ""
		d.updated = d.now()
		d.seq++
		v := d.viewLocked()
		d.mu.Unlock()

		metrics.MarketSnapshotSize.WithLabelValues(d.name).Set(float64(len(quotes)))
		d.publish(v)
		return
	}

	metrics.MarketPollErrors.WithLabelValues(d.name, string(ph), string(upstream.TypeOf(err))).Inc()
	prev := d.status
	switch prev {
	case StatusReady:
		// keep the last good snapshot on screen
	default:
		d.status = StatusError
		d.errMsg, d.errKey = errorText(err)
		d.seq++
	}
	v := d.viewLocked()
	d.mu.Unlock()

	if prev == StatusReady {
		logger.Log.Warn("market refresh failed, keeping last snapshot",
			zap.String("view", d.name), zap.String("phase", string(ph)), zap.Error(err))
		return
	}
	logger.Log.Error("market data unavailable",
		zap.String("view", d.name), zap.String("phase", string(ph)), zap.Error(err))
	d.publish(v)
}

// publish hands v to the hooks unless a newer view already went out.
func (d *Display) publish(v View) {
	if len(d.hooks) == 0 {
		return
	}
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	if v.Seq <= d.hooked {
		logger.Log.Debug("dropping superseded view", zap.String("view", d.name), zap.Uint64("seq", v.Seq))
		return
	}
	d.hooked = v.Seq
	for _, hook := range d.hooks {
		hook(v)
	}
}

// errorText returns the upstream's own message, or the translation key of
// the fallback to show instead.
func errorText(err error) (msg, key string) {
	if detail := upstream.DetailOf(err); detail != "" {
		return detail, ""
	}
	switch upstream.TypeOf(err) {
	case upstream.ErrorTypeNetwork, upstream.ErrorTypeTimeout:
		return "", ErrorKeyFetch
	default:
		return "", ErrorKeyGeneric
	}
}

// ReportLogoFailure records a logo load failure reported by a browser. Only
// symbols in the current snapshot are accepted. It reports whether the
// symbol was newly recorded.
func (d *Display) ReportLogoFailure(symbol string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.gen == 0 {
		return false
	}
	for _, q := range d.snapshot {
		if q.Symbol == symbol {
			return d.logos.fail(symbol, "browser")
		}
	}
	return false
}

// FailedLogos returns the symbols rendered with the fallback badge.
func (d *Display) FailedLogos() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.logos == nil {
		return nil
	}
	return d.logos.failures.Symbols()
}
