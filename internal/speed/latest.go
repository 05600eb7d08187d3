package speed

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/beemacro/beemacro/internal/utils"
)

// BaseWalkSpeed is the in-game walk speed, in units per second, that a multiplier of 1.0
// stands for.
const BaseWalkSpeed = 28.0

// MultiplierFromWalkSpeed converts an absolute walk speed reading into a multiplier.
func MultiplierFromWalkSpeed(ws float64) float64 {
	return Sanitize(ws / BaseWalkSpeed)
}

// Latest caches the most recent reading pushed by the external detector. Readings older
// than maxAge are considered stale and the fallback multiplier is reported instead, so a
// dead detector degrades to fixed-speed timing rather than to a frozen haste value.
type Latest struct {
	bits     atomic.Uint64
	updated  atomic.Int64
	fallback atomic.Uint64
	maxAge   time.Duration
	clock    utils.Clock
}

// NewLatest builds a cache with a fallback of 1.0. A zero maxAge disables staleness.
func NewLatest(maxAge time.Duration, clock utils.Clock) *Latest {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	l := &Latest{maxAge: maxAge, clock: clock}
	l.fallback.Store(math.Float64bits(1))
	return l
}

// SetFallback changes the multiplier reported while no fresh reading is available.
func (l *Latest) SetFallback(k float64) {
	l.fallback.Store(math.Float64bits(Sanitize(k)))
}

func (l *Latest) Fallback() float64 {
	return math.Float64frombits(l.fallback.Load())
}

// Set stores a multiplier reading. Readings are sanitized on the way in.
func (l *Latest) Set(k float64) {
	l.bits.Store(math.Float64bits(Sanitize(k)))
	l.updated.Store(l.clock.Now().UnixNano())
}

// SetWalkSpeed stores an absolute walk speed reading.
func (l *Latest) SetWalkSpeed(ws float64) error {
	if math.IsNaN(ws) || math.IsInf(ws, 0) || ws < 0 {
		return fmt.Errorf("invalid walk speed %v", ws)
	}
	l.Set(MultiplierFromWalkSpeed(ws))
	return nil
}

// Reading returns the cached multiplier, its age and whether it is still fresh.
func (l *Latest) Reading() (k float64, age time.Duration, fresh bool) {
	at := l.updated.Load()
	if at == 0 {
		return l.Fallback(), 0, false
	}
	age = l.clock.Now().Sub(time.Unix(0, at))
	k = math.Float64frombits(l.bits.Load())
	if l.maxAge > 0 && age > l.maxAge {
		return l.Fallback(), age, false
	}
	return k, age, true
}

func (l *Latest) SpeedMultiplier() float64 {
	k, _, _ := l.Reading()
	return k
}
