package timer

import (
	"log/slog"
	"sync"
	"time"

	"tonic"

	"github.com/beevik/ntp"
)

const (
	defaultPool      = "pool.ntp.org"
	defaultInterval  = 60 * time.Second
	defaultThreshold = 500 * time.Millisecond
)

// Drift states.
const (
	StateHealthy = "healthy"
	StateSkewed  = "skewed"
	StateErratic = "erratic"
)

const opChecked = "checked"

// Sample is one drift measurement. Err is set when the probe itself
// failed, in which case Offset is meaningless.
type Sample struct {
	Offset    time.Duration
	Err       error
	CheckedAt time.Time
}

// ProbeFunc measures the local clock's offset against a reference.
type ProbeFunc func() (time.Duration, error)

// Drift watches the local clock against an NTP pool. Its goroutine probes
// on an interval and hands each measurement over as a queued item; the
// handler moves the machine between healthy, skewed and erratic on
// threshold crossings.
type Drift struct {
	*tonic.Tonic
	log       *slog.Logger
	clock     Clock
	probe     ProbeFunc
	pool      string
	interval  time.Duration
	threshold time.Duration
	stop      chan struct{}

	mu   sync.RWMutex
	last Sample
}

// Last returns the most recent sample.
func (d *Drift) Last() Sample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Watch binds a drift watcher to owner. Recognized params: "pool" (string),
// "interval" and "threshold" (time.Duration), "probe" (ProbeFunc, test
// seam), "clock" (Clock).
func Watch(owner tonic.Registrant, params tonic.Params) (*Drift, error) {
	r, err := owner.Core().Bind(DriftClass, params)
	if err != nil {
		return nil, err
	}
	return r.(*Drift), nil
}

// DriftClass is the clock-drift watcher.
var DriftClass = &tonic.Class{
	Name:       "timer.drift",
	New:        newDrift,
	OnStart:    startDrift,
	OnFinished: stopDrift,
	OnEnter:    driftEntered,
	States: []tonic.State{
		{Name: StateHealthy},
		{Name: StateSkewed},
		{Name: StateErratic},
	},
	Ops: []tonic.Op{
		{Name: opChecked, Category: tonic.Internal, Do: driftChecked},
	},
}

func newDrift(t *tonic.Tonic) tonic.Registrant {
	d := &Drift{
		Tonic:     t,
		log:       slog.With("component", "drift"),
		clock:     SystemClock{},
		pool:      defaultPool,
		interval:  defaultInterval,
		threshold: defaultThreshold,
		stop:      make(chan struct{}),
	}
	p := t.Params()
	if pool, ok := p.String("pool"); ok && pool != "" {
		d.pool = pool
	}
	if v, ok := p["interval"].(time.Duration); ok && v > 0 {
		d.interval = v
	}
	if v, ok := p["threshold"].(time.Duration); ok && v > 0 {
		d.threshold = v
	}
	switch v := p["probe"].(type) {
	case ProbeFunc:
		d.probe = v
	case func() (time.Duration, error):
		d.probe = v
	}
	if v, ok := p["clock"].(Clock); ok {
		d.clock = v
	}
	if d.probe == nil {
		d.probe = ntpProbe(d.pool)
	}
	return d
}

func ntpProbe(pool string) ProbeFunc {
	return func() (time.Duration, error) {
		resp, err := ntp.Query(pool)
		if err != nil {
			return 0, err
		}
		return resp.ClockOffset, nil
	}
}

func startDrift(r tonic.Registrant, _ any) error {
	go r.(*Drift).run()
	return nil
}

func stopDrift(r tonic.Registrant, _ any) error {
	close(r.(*Drift).stop)
	return nil
}

func (d *Drift) run() {
	d.check()
	tk := time.NewTicker(d.interval)
	defer tk.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-d.Catalyst().Done():
			return
		case <-tk.C:
			d.check()
		}
	}
}

// check probes off the catalyst goroutine and hands the sample over as a
// queued item.
func (d *Drift) check() {
	off, err := d.probe()
	d.Internal(opChecked, Sample{Offset: off, Err: err, CheckedAt: d.clock.Now()})
}

func driftChecked(r tonic.Registrant, payload any) error {
	d := r.(*Drift)
	s := payload.(Sample)
	d.mu.Lock()
	d.last = s
	d.mu.Unlock()

	switch {
	case s.Err != nil:
		d.ToState(StateErratic)
	case s.Offset.Abs() < d.threshold:
		d.ToState(StateHealthy)
	default:
		d.ToState(StateSkewed)
	}
	return nil
}

func driftEntered(r tonic.Registrant, _ any) error {
	d := r.(*Drift)
	s := d.Last()
	if s.Err != nil {
		d.log.Warn("clock drift probe failing", "state", d.State(), "error", s.Err)
		return nil
	}
	d.log.Info("clock drift state changed", "state", d.State(), "offset", s.Offset)
	return nil
}
