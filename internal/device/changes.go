package device

import (
	"math"
	"time"
)

// Power states reported on the state attribute.
const (
	PowerOff int64 = 0
	PowerOn  int64 = 1
)

// Recipe is a cooking preset. Zero values are sent for omitted fields.
type Recipe struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Temp  float64 `json:"temp"`
	Time  int64   `json:"time"` // seconds
}

// TurnOff stops heating.
func TurnOff() Delta {
	return Delta{AttrState: IntValue(PowerOff)}
}

// TurnOn starts heating.
func TurnOn() Delta {
	return Delta{AttrState: IntValue(PowerOn)}
}

// ApplyRecipe loads a preset, powers on and leaves the timer stopped with the
// recipe's duration.
func ApplyRecipe(rc Recipe) Delta {
	return Delta{
		AttrRecipeID:     IntValue(rc.ID),
		AttrRecipeTitle:  StringValue(rc.Title),
		AttrSetpoint:     FloatValue(rc.Temp),
		AttrState:        IntValue(PowerOn),
		AttrTimerRunning: BoolValue(false),
		AttrTimerSecs:    IntValue(rc.Time),
	}
}

// SetSetpoint changes the target temperature, rounded to hundredths.
func SetSetpoint(temp float64) Delta {
	return Delta{AttrSetpoint: FloatValue(math.Round(temp*100) / 100)}
}

// SetUnits selects the display unit. Any unit other than "F" means Celsius.
func SetUnits(unit string) Delta {
	return Delta{AttrShowF: BoolValue(unit == "F")}
}

// SetTimer sets a stopped countdown of secs seconds.
func SetTimer(secs int64) Delta {
	return Delta{
		AttrTimerSecs:    IntValue(secs),
		AttrTimerRunning: BoolValue(false),
	}
}

// StartTimer starts the countdown from the current remaining seconds.
func StartTimer(current State, now time.Time) Delta {
	secs := current[AttrTimerSecs].Int()
	return Delta{
		AttrTimerEnd:     IntValue(epochSeconds(now) + secs),
		AttrTimerRunning: BoolValue(true),
	}
}

// StopTimer pauses the countdown, keeping the time left. A timer whose end
// has already passed stops at zero.
func StopTimer(current State, now time.Time) Delta {
	remaining := current[AttrTimerEnd].Int() - epochSeconds(now)
	if remaining < 0 {
		remaining = 0
	}
	return Delta{
		AttrTimerSecs:    IntValue(remaining),
		AttrTimerRunning: BoolValue(false),
	}
}

func epochSeconds(t time.Time) int64 {
	return t.Round(time.Second).Unix()
}
