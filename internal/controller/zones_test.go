package controller

import (
	"testing"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		activate bool
		want     Level
	}{
		{true, High},
		{false, Low},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.activate); got != tt.want {
			t.Errorf("LevelFor(%v) = %v, want %v", tt.activate, got, tt.want)
		}
	}
}

func TestLevel_String(t *testing.T) {
	if High.String() != "high" || Low.String() != "low" {
		t.Errorf("Level.String() = %q/%q, want high/low", High.String(), Low.String())
	}
}

func TestNewZoneBank(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  int
	}{
		{"default", 0, config.ZoneCount},
		{"negative", -1, config.ZoneCount},
		{"custom", 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := NewZoneBank(tt.count)
			if got := bank.Count(); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
			for i, level := range bank.Status() {
				if level != Low {
					t.Errorf("Status()[%d] = %v, want low", i, level)
				}
			}
		})
	}
}

func TestZoneBank_ToggleZone(t *testing.T) {
	tests := []struct {
		name      string
		zone      uint8
		level     Level
		wantErr   bool
		wantLevel Level
	}{
		{name: "first zone on", zone: 0, level: High, wantLevel: High},
		{name: "last zone on", zone: 5, level: High, wantLevel: High},
		{name: "zone off", zone: 3, level: Low, wantLevel: Low},
		{name: "one past the end", zone: 6, level: High, wantErr: true},
		{name: "far out of range", zone: 255, level: High, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := NewZoneBank(6)
			err := bank.ToggleZone(tt.zone, tt.level)

			if tt.wantErr {
				if !protocol.IsType(err, protocol.ErrTypeZoneOutOfRange) {
					t.Fatalf("ToggleZone() error = %v, want ZoneOutOfRange", err)
				}
				for i, level := range bank.Status() {
					if level != Low {
						t.Errorf("Status()[%d] = %v after rejected toggle, want low", i, level)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("ToggleZone() error = %v", err)
			}
			if got := bank.Level(tt.zone); got != tt.wantLevel {
				t.Errorf("Level(%d) = %v, want %v", tt.zone, got, tt.wantLevel)
			}
		})
	}
}

func TestZoneBank_OnChangeAndAllOff(t *testing.T) {
	bank := NewZoneBank(6)

	var changes []Level
	bank.OnChange = func(zone uint8, level Level) {
		changes = append(changes, level)
	}

	_ = bank.ToggleZone(1, High)
	_ = bank.ToggleZone(4, High)
	_ = bank.ToggleZone(9, High)

	status := bank.Status()
	if status[1] != High || status[4] != High {
		t.Fatalf("Status() = %v, want zones 1 and 4 high", status)
	}

	// Status is a snapshot.
	status[1] = Low
	if bank.Level(1) != High {
		t.Error("modifying Status() result changed the bank")
	}

	bank.AllOff()
	for i, level := range bank.Status() {
		if level != Low {
			t.Errorf("Status()[%d] = %v after AllOff, want low", i, level)
		}
	}

	want := []Level{High, High, Low, Low}
	if len(changes) != len(want) {
		t.Fatalf("OnChange calls = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("OnChange[%d] = %v, want %v", i, changes[i], want[i])
		}
	}
}
