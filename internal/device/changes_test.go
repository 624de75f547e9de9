package device

import (
	"testing"
	"time"
)

func TestSugarDeltas(t *testing.T) {
	tests := []struct {
		name  string
		delta Delta
		want  Delta
	}{
		{"turn off", TurnOff(), Delta{AttrState: IntValue(0)}},
		{"turn on", TurnOn(), Delta{AttrState: IntValue(1)}},
		{"setpoint rounds", SetSetpoint(55.126), Delta{AttrSetpoint: FloatValue(55.13)}},
		{"units F", SetUnits("F"), Delta{AttrShowF: BoolValue(true)}},
		{"units C", SetUnits("C"), Delta{AttrShowF: BoolValue(false)}},
		{"set timer", SetTimer(600), Delta{AttrTimerSecs: IntValue(600), AttrTimerRunning: BoolValue(false)}},
		{"empty recipe", ApplyRecipe(Recipe{}), Delta{
			AttrRecipeID:     IntValue(0),
			AttrRecipeTitle:  StringValue(""),
			AttrSetpoint:     FloatValue(0),
			AttrState:        IntValue(1),
			AttrTimerRunning: BoolValue(false),
			AttrTimerSecs:    IntValue(0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !State(tt.delta).Equal(State(tt.want)) {
				t.Errorf("delta = %v, want %v", tt.delta, tt.want)
			}
		})
	}
}

func TestStartStopTimer(t *testing.T) {
	now := time.Unix(1_700_000_000, 400*int64(time.Millisecond))

	start := StartTimer(State{AttrTimerSecs: IntValue(300)}, now)
	if got := start[AttrTimerEnd]; got != IntValue(1_700_000_300) {
		t.Errorf("StartTimer timerEnd = %v, want 1700000300", got)
	}
	if got := start[AttrTimerRunning]; got != BoolValue(true) {
		t.Errorf("StartTimer timerRunning = %v, want true", got)
	}

	stop := StopTimer(State{AttrTimerEnd: IntValue(1_700_000_120)}, now.Add(600*time.Millisecond))
	if got := stop[AttrTimerSecs]; got != IntValue(119) {
		t.Errorf("StopTimer timerSecs = %v, want 119", got)
	}
	if got := stop[AttrTimerRunning]; got != BoolValue(false) {
		t.Errorf("StopTimer timerRunning = %v, want false", got)
	}

	expired := StopTimer(State{AttrTimerEnd: IntValue(1_600_000_000)}, now)
	if got := expired[AttrTimerSecs]; got != IntValue(0) {
		t.Errorf("StopTimer after end timerSecs = %v, want 0", got)
	}
}
