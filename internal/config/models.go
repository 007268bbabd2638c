package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ZoneCount is the number of irrigation outputs the system addresses.
const ZoneCount = 6

// MinutesPerDay bounds StartTimeMinutes.
const MinutesPerDay = 24 * 60

// Zone identifies one irrigation output. Its numeric value is the index used
// on the toggle wire (0..5); its text form is "zone1".."zone6".
type Zone uint8

const (
	Zone1 Zone = iota
	Zone2
	Zone3
	Zone4
	Zone5
	Zone6
)

// Valid reports whether z addresses one of the configured outputs.
func (z Zone) Valid() bool {
	return int(z) < ZoneCount
}

// Index returns the numeric wire index of the zone.
func (z Zone) Index() uint8 {
	return uint8(z)
}

// String returns the text form, e.g. "zone1".
func (z Zone) String() string {
	return "zone" + strconv.Itoa(int(z)+1)
}

// MarshalText implements encoding.TextMarshaler
func (z Zone) MarshalText() ([]byte, error) {
	if !z.Valid() {
		return nil, fmt.Errorf("invalid zone index %d", z)
	}
	return []byte(z.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (z *Zone) UnmarshalText(text []byte) error {
	parsed, err := ParseZone(string(text))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}

// ParseZone parses "zone1".."zone6" (case-insensitive).
func ParseZone(s string) (Zone, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(lower, "zone") {
		return 0, fmt.Errorf("unknown zone %q", s)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(lower, "zone"))
	if err != nil || n < 1 || n > ZoneCount {
		return 0, fmt.Errorf("unknown zone %q", s)
	}
	return Zone(n - 1), nil
}

// ZoneFromIndex converts a wire index into a Zone.
func ZoneFromIndex(index uint8) (Zone, error) {
	z := Zone(index)
	if !z.Valid() {
		return 0, fmt.Errorf("zone index %d out of range (0-%d)", index, ZoneCount-1)
	}
	return z, nil
}

// Day is a day of the week in its lowercase text form.
type Day string

const (
	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
	Saturday  Day = "saturday"
	Sunday    Day = "sunday"
)

var weekdays = map[time.Weekday]Day{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// DayOf returns the Day for a time.Weekday.
func DayOf(w time.Weekday) Day {
	return weekdays[w]
}

// Valid reports whether d is one of the seven known days.
func (d Day) Valid() bool {
	for _, known := range weekdays {
		if d == known {
			return true
		}
	}
	return false
}

// ActivePeriod is one step of a watering sequence.
// Identity is the zone; the duration is data.
type ActivePeriod struct {
	Zone            Zone   `json:"zone" yaml:"zone"`
	DurationMinutes uint32 `json:"durationMinutes" yaml:"duration_minutes"`
}

// Duration returns the period length as a time.Duration.
func (p ActivePeriod) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// Schedule describes when and how a sequence of zones is watered.
type Schedule struct {
	Name             string         `json:"name" yaml:"name"`
	Days             []Day          `json:"days" yaml:"days"`
	ActivePeriods    []ActivePeriod `json:"activePeriods" yaml:"active_periods"`
	StartTimeMinutes uint32         `json:"startTimeMinutes" yaml:"start_time_minutes"`
	IsActive         bool           `json:"isActive" yaml:"is_active"`
}

// Normalize returns a copy of s with duplicate days removed and at most one
// active period per zone. The first occurrence wins and order is preserved.
func (s Schedule) Normalize() Schedule {
	out := s

	out.Days = make([]Day, 0, len(s.Days))
	seenDays := make(map[Day]bool, len(s.Days))
	for _, d := range s.Days {
		if seenDays[d] {
			continue
		}
		seenDays[d] = true
		out.Days = append(out.Days, d)
	}

	out.ActivePeriods = make([]ActivePeriod, 0, len(s.ActivePeriods))
	seenZones := make(map[Zone]bool, len(s.ActivePeriods))
	for _, p := range s.ActivePeriods {
		if seenZones[p.Zone] {
			continue
		}
		seenZones[p.Zone] = true
		out.ActivePeriods = append(out.ActivePeriods, p)
	}

	return out
}

// Validate checks the schedule for values the engine cannot act on.
func (s Schedule) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("schedule name must not be empty")
	}
	if s.StartTimeMinutes >= MinutesPerDay {
		return fmt.Errorf("schedule %q: start time %d must be below %d", s.Name, s.StartTimeMinutes, MinutesPerDay)
	}
	for _, d := range s.Days {
		if !d.Valid() {
			return fmt.Errorf("schedule %q: unknown day %q", s.Name, d)
		}
	}
	for _, p := range s.ActivePeriods {
		if !p.Zone.Valid() {
			return fmt.Errorf("schedule %q: zone index %d out of range", s.Name, p.Zone)
		}
	}
	return nil
}

// RunsOn reports whether the schedule includes day d.
func (s Schedule) RunsOn(d Day) bool {
	for _, day := range s.Days {
		if day == d {
			return true
		}
	}
	return false
}

// StartsAt reports whether t falls on one of the schedule's days and in its
// start minute. The active flag is not consulted.
func (s Schedule) StartsAt(t time.Time) bool {
	if !s.RunsOn(DayOf(t.Weekday())) {
		return false
	}
	return uint32(t.Hour()*60+t.Minute()) == s.StartTimeMinutes
}

// StartTime formats StartTimeMinutes as HH:MM.
func (s Schedule) StartTime() string {
	return fmt.Sprintf("%02d:%02d", s.StartTimeMinutes/60, s.StartTimeMinutes%60)
}

// Config is the whole persisted relay configuration.
type Config struct {
	Schedules    []Schedule `json:"schedules" yaml:"schedules"`
	StaggerOn    bool       `json:"staggerOn" yaml:"stagger_on"`
	StaggerZones bool       `json:"staggerZones" yaml:"stagger_zones"`
}

// Default returns an empty configuration.
func Default() Config {
	return Config{Schedules: []Schedule{}}
}

// Stagger reports whether zone transitions overlap during a run.
func (c Config) Stagger() bool {
	return c.StaggerZones
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.Schedules = make([]Schedule, len(c.Schedules))
	for i, s := range c.Schedules {
		s.Days = append([]Day(nil), s.Days...)
		s.ActivePeriods = append([]ActivePeriod(nil), s.ActivePeriods...)
		out.Schedules[i] = s
	}
	return out
}

// Normalize applies Schedule.Normalize to every schedule.
func (c Config) Normalize() Config {
	out := c
	out.Schedules = make([]Schedule, len(c.Schedules))
	for i, s := range c.Schedules {
		out.Schedules[i] = s.Normalize()
	}
	return out
}

// Validate validates every schedule.
func (c Config) Validate() error {
	for i, s := range c.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schedule %d: %w", i, err)
		}
	}
	return nil
}
