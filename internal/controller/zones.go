package controller

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

// Level is the electrical state of a zone output.
type Level int

const (
	Low Level = iota
	High
)

// String returns "low" or "high"
func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// LevelFor maps a toggleZone activate flag to an output level.
func LevelFor(activate bool) Level {
	if activate {
		return High
	}
	return Low
}

// ZoneDriver drives the irrigation outputs. zone is the wire index, starting
// at 0.
type ZoneDriver interface {
	ToggleZone(zone uint8, level Level) error
}

// ZoneBank is an in-memory ZoneDriver. It is the default driver on hosts
// without valve hardware and records the level of every output.
type ZoneBank struct {
	mu     sync.Mutex
	levels []Level

	// OnChange, if set, is called after every successful toggle
	OnChange func(zone uint8, level Level)
}

// NewZoneBank creates a bank of count outputs, all Low. A count of zero or
// less selects config.ZoneCount.
func NewZoneBank(count int) *ZoneBank {
	if count <= 0 {
		count = config.ZoneCount
	}
	return &ZoneBank{levels: make([]Level, count)}
}

// ToggleZone sets zone to level. Zones at or above Count fail with a
// ZoneOutOfRange error and leave every output unchanged.
func (b *ZoneBank) ToggleZone(zone uint8, level Level) error {
	b.mu.Lock()
	if int(zone) >= len(b.levels) {
		count := len(b.levels)
		b.mu.Unlock()
		return protocol.NewError(protocol.ErrTypeZoneOutOfRange,
			fmt.Sprintf("zone index %d out of range (0-%d)", zone, count-1), nil)
	}
	b.levels[zone] = level
	onChange := b.OnChange
	b.mu.Unlock()

	logging.Info("Zone output set",
		zap.Uint8("zone", zone),
		zap.Stringer("level", level),
	)
	if onChange != nil {
		onChange(zone, level)
	}
	return nil
}

// Level returns the current level of zone. Out of range zones read Low.
func (b *ZoneBank) Level(zone uint8) Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(zone) >= len(b.levels) {
		return Low
	}
	return b.levels[zone]
}

// Status returns a snapshot of every output, indexed by zone.
func (b *ZoneBank) Status() []Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Level(nil), b.levels...)
}

// Count returns the number of outputs.
func (b *ZoneBank) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.levels)
}

// AllOff drives every output Low.
func (b *ZoneBank) AllOff() {
	for zone := 0; zone < b.Count(); zone++ {
		if b.Level(uint8(zone)) == High {
			_ = b.ToggleZone(uint8(zone), Low)
		}
	}
}
