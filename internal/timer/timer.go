// Package timer provides the countdown and silence timers that drive a
// discussion session. Timers never call back directly: every fire is handed
// to a Dispatch function so the owner can run it on its own event loop. All
// methods must be called from that loop.
package timer

import (
	"math/rand"
	"time"

	"gdsim/internal/clock"
)

// Dispatch runs fn on the owner's event loop.
type Dispatch func(fn func())

// OneShot is a cancellable single callback. Re-arming cancels the previous
// handle, and a fire that raced with a cancel is dropped.
type OneShot struct {
	clock    clock.Clock
	dispatch Dispatch
	timer    clock.Timer
	gen      uint64
}

func NewOneShot(clk clock.Clock, dispatch Dispatch) *OneShot {
	return &OneShot{clock: clk, dispatch: dispatch}
}

// Arm schedules fn after d, replacing any pending callback.
func (o *OneShot) Arm(d time.Duration, fn func()) {
	o.Cancel()
	gen := o.gen
	o.timer = o.clock.AfterFunc(d, func() {
		o.dispatch(func() {
			if gen != o.gen {
				return
			}
			o.timer = nil
			fn()
		})
	})
}

// Cancel is safe to call when nothing is armed.
func (o *OneShot) Cancel() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
}

// Armed reports whether a callback is pending.
func (o *OneShot) Armed() bool {
	return o.timer != nil
}

// Countdown decrements once per second and reports expiry at zero.
type Countdown struct {
	shot     *OneShot
	left     int
	onTick   func(left int)
	onExpire func()
}

func NewCountdown(clk clock.Clock, dispatch Dispatch, onTick func(left int), onExpire func()) *Countdown {
	if onTick == nil {
		onTick = func(int) {}
	}
	return &Countdown{
		shot:     NewOneShot(clk, dispatch),
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start (re)starts the countdown from seconds.
func (c *Countdown) Start(seconds int) {
	c.Stop()
	c.left = seconds
	c.onTick(c.left)
	c.schedule()
}

// Stop cancels the countdown, keeping the remaining seconds.
func (c *Countdown) Stop() {
	c.shot.Cancel()
}

// Remaining returns the seconds left on the countdown.
func (c *Countdown) Remaining() int {
	return c.left
}

func (c *Countdown) schedule() {
	c.shot.Arm(time.Second, c.step)
}

func (c *Countdown) step() {
	c.left--
	c.onTick(c.left)
	if c.left <= 0 {
		if c.onExpire != nil {
			c.onExpire()
		}
		return
	}
	c.schedule()
}

// Silence fires after a jittered period of inactivity.
type Silence struct {
	shot   *OneShot
	base   time.Duration
	jitter time.Duration
	rng    *rand.Rand
	fire   func()
}

func NewSilence(clk clock.Clock, dispatch Dispatch, base, jitter time.Duration, rng *rand.Rand, fire func()) *Silence {
	return &Silence{
		shot:   NewOneShot(clk, dispatch),
		base:   base,
		jitter: jitter,
		rng:    rng,
		fire:   fire,
	}
}

// Arm cancels any pending fire and schedules a new one with a freshly drawn
// delay, which it returns.
func (s *Silence) Arm() time.Duration {
	delay := JitteredDelay(s.base, s.jitter, s.rng)
	s.shot.Arm(delay, s.fire)
	return delay
}

func (s *Silence) Cancel() {
	s.shot.Cancel()
}

func (s *Silence) Armed() bool {
	return s.shot.Armed()
}

// JitteredDelay returns base shifted by a uniform offset in [-jitter, +jitter].
func JitteredDelay(base, jitter time.Duration, rng *rand.Rand) time.Duration {
	if jitter <= 0 {
		return base
	}
	f := rand.Float64()
	if rng != nil {
		f = rng.Float64()
	}
	delay := base + time.Duration((f*2-1)*float64(jitter))
	if delay < 0 {
		return 0
	}
	return delay
}
