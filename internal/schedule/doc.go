// Package schedule fires watering schedules at their start minute.
//
// Each schedule gets its own worker goroutine that wakes once a second and
// compares the local weekday and minute of day with the schedule. On a match
// it calls Run, which walks the schedule's active periods and sends
// toggleZone commands through an Emitter:
//
//	zone1 on ─ 10m ─ zone2 on, zone1 off ─ 5m ─ zone2 off
//
// With staggering enabled each handover overlaps both zones for 10s.
//
// Replacing the configuration never touches a worker directly. Engine.Update
// passes the new configuration to a single applier goroutine, which stops
// and joins the current workers before starting the new ones. A run that is
// already watering finishes first.
package schedule
