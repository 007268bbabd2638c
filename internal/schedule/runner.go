package schedule

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
)

// StaggerWindow is how long two consecutive zones run together when
// staggering is enabled.
const StaggerWindow = 10 * time.Second

// Emitter delivers zone commands to the controller. *relay.Hub implements it.
type Emitter interface {
	ToggleZone(zone config.Zone, activate bool) bool
}

// Run walks periods in order. The first zone is switched on, and each
// following zone is switched on before its predecessor is switched off, so at
// most two zones are ever on. With stagger the pair overlaps for
// StaggerWindow, taken from the end of the earlier period; periods shorter
// than the window overlap for the full window.
//
// Failed emissions are logged and the sequence continues. If ctx is done
// mid-run, zones still on are switched off and Run returns ctx.Err().
func Run(ctx context.Context, emitter Emitter, clock clockwork.Clock, periods []config.ActivePeriod, stagger bool) error {
	r := &run{ctx: ctx, emitter: emitter, clock: clock}
	defer r.abort()

	for i, period := range periods {
		if i == 0 {
			r.toggle(period.Zone, true)
		}

		hold := period.Duration()
		if stagger {
			hold -= StaggerWindow
		}
		if !r.sleep(hold) {
			return ctx.Err()
		}

		if i < len(periods)-1 {
			r.toggle(periods[i+1].Zone, true)
		}

		if stagger && !r.sleep(StaggerWindow) {
			return ctx.Err()
		}

		r.toggle(period.Zone, false)
	}
	return nil
}

type run struct {
	ctx     context.Context
	emitter Emitter
	clock   clockwork.Clock

	// zones switched on and not yet off, oldest first
	on []config.Zone
}

func (r *run) toggle(zone config.Zone, activate bool) {
	if !r.emitter.ToggleZone(zone, activate) {
		logging.Warn("Zone command not delivered",
			zap.Stringer("zone", zone),
			zap.Bool("activate", activate),
		)
	}

	if activate {
		r.on = append(r.on, zone)
		return
	}
	for i, z := range r.on {
		if z == zone {
			r.on = append(r.on[:i], r.on[i+1:]...)
			break
		}
	}
}

// sleep waits d on the run's clock. Non-positive durations return at once.
// It reports false if the context ended first.
func (r *run) sleep(d time.Duration) bool {
	if d <= 0 {
		return r.ctx.Err() == nil
	}
	select {
	case <-r.clock.After(d):
		return true
	case <-r.ctx.Done():
		return false
	}
}

// abort switches off anything left on by an interrupted run.
func (r *run) abort() {
	if len(r.on) == 0 {
		return
	}
	for _, zone := range append([]config.Zone(nil), r.on...) {
		logging.Info("Stopping zone of interrupted run", zap.Stringer("zone", zone))
		r.toggle(zone, false)
	}
}
