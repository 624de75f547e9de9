package device

import (
	"encoding/json"
	"errors"
	"testing"
)

func newTestRecord() *Record {
	return NewRecord(Info{ID: "1", HardwareID: "asdf", Name: "longname"})
}

// mustUpdate applies a message and fails the test on error.
func mustUpdate(t *testing.T, r *Record, topic, payload string) Snapshot {
	t.Helper()
	snap, err := r.UpdateState(topic, payload)
	if err != nil {
		t.Fatalf("UpdateState(%q, %q) error = %v", topic, payload, err)
	}
	return snap
}

// fillValid drives the record to a valid, stopped-timer state.
func fillValid(t *testing.T, r *Record) {
	t.Helper()
	fillValidExcept(t, r, 0)
}

// fillValidExcept is fillValid with one attribute never observed.
func fillValidExcept(t *testing.T, r *Record, skip Attribute) {
	t.Helper()
	for _, m := range []struct {
		attr    Attribute
		payload string
	}{
		{AttrTemp, "55.2"},
		{AttrSetpoint, "57.0"},
		{AttrShowF, "0"},
		{AttrState, "1"},
		{AttrTimerRunning, "0"},
		{AttrTimerSecs, "300"},
	} {
		if m.attr != skip {
			mustUpdate(t, r, m.attr.String(), m.payload)
		}
	}
}

// ===== UpdateState =====

func TestUpdateState_Leaf(t *testing.T) {
	r := newTestRecord()

	snap := mustUpdate(t, r, "setpoint", "57.0")

	if !snap.New {
		t.Error("New = false, want true for first observation")
	}
	if got := snap.State[AttrSetpoint]; got != FloatValue(57.0) {
		t.Errorf("State[setpoint] = %v, want 57", got)
	}
	if snap.Valid {
		t.Error("Valid = true, want false with only setpoint known")
	}
	if snap.ID != "1" {
		t.Errorf("ID = %q, want %q", snap.ID, "1")
	}
}

func TestUpdateState_Idempotent(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "temp", "55.2")

	snap := mustUpdate(t, r, "temp", "55.2")
	if snap.New {
		t.Error("New = true, want false for a repeated identical message")
	}
}

func TestUpdateState_Parsers(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		attr    Attribute
		want    Value
	}{
		{"temp", "55.25", AttrTemp, FloatValue(55.25)},
		{"setpoint", " 60 ", AttrSetpoint, FloatValue(60)},
		{"showF", "1", AttrShowF, BoolValue(true)},
		{"showF", "0", AttrShowF, BoolValue(false)},
		{"showF", "true", AttrShowF, BoolValue(false)},
		{"state", "1", AttrState, IntValue(1)},
		{"recipeID", "42", AttrRecipeID, IntValue(42)},
		{"recipeID", "42.9", AttrRecipeID, IntValue(42)},
		{"recipeTitle", "Salmon 50C", AttrRecipeTitle, StringValue("Salmon 50C")},
		{"timerSecs", "120", AttrTimerSecs, IntValue(120)},
		{"timerRunning", "1", AttrTimerRunning, BoolValue(true)},
	}

	for _, tt := range tests {
		t.Run(tt.topic+"="+tt.payload, func(t *testing.T) {
			r := newTestRecord()
			snap := mustUpdate(t, r, tt.topic, tt.payload)
			if got := snap.State[tt.attr]; got != tt.want {
				t.Errorf("State[%s] = %v (%s), want %v (%s)", tt.attr, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestUpdateState_InvalidPayload(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")

	for _, tc := range []struct{ topic, payload string }{
		{"setpoint", "hot"},
		{"setpoint", "Inf"},
		{"setpoint", "-Infinity"},
		{"temp", "+Inf"},
		{"temp", "NaN"},
		{"timer", "Inf"},
		{"state", ""},
		{"timer", "soon"},
		{"json", "{not json"},
	} {
		snap, err := r.UpdateState(tc.topic, tc.payload)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("UpdateState(%q, %q) error = %v, want ErrInvalidPayload", tc.topic, tc.payload, err)
		}
		if snap.New {
			t.Errorf("UpdateState(%q, %q) New = true, want false", tc.topic, tc.payload)
		}
	}
	if v, _ := r.Value(AttrSetpoint); v != FloatValue(57.0) {
		t.Errorf("setpoint = %v, want unchanged 57", v)
	}
	if _, err := json.Marshal(r.Snapshot()); err != nil {
		t.Errorf("json.Marshal(Snapshot()) error = %v", err)
	}
}

func TestUpdateState_UnknownTopicIsNoop(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "temp", "55.2")

	snap := mustUpdate(t, r, "firmware", "1.2.3")
	if snap.New {
		t.Error("New = true, want false for unknown topic")
	}
	if len(snap.State) != 1 {
		t.Errorf("len(State) = %d, want 1", len(snap.State))
	}
}

// ===== Timer decomposition =====

func TestUpdateState_TimerComposite(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantRunning bool
		wantAttr    Attribute
		wantValue   int64
	}{
		{"countdown", "300", false, AttrTimerSecs, 300},
		{"at threshold", "3000000", false, AttrTimerSecs, 3_000_000},
		{"epoch end", "1700000000", true, AttrTimerEnd, 1_700_000_000},
		{"just above threshold", "3000001", true, AttrTimerEnd, 3_000_001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecord()
			snap := mustUpdate(t, r, "timer", tt.payload)

			if got := snap.State[AttrTimerRunning]; got != BoolValue(tt.wantRunning) {
				t.Errorf("timerRunning = %v, want %v", got, tt.wantRunning)
			}
			if got := snap.State[tt.wantAttr]; got != IntValue(tt.wantValue) {
				t.Errorf("%s = %v, want %d", tt.wantAttr, got, tt.wantValue)
			}
			if !snap.New {
				t.Error("New = false, want true")
			}
		})
	}
}

func TestUpdateState_JSONComposite(t *testing.T) {
	r := newTestRecord()

	snap := mustUpdate(t, r, "json", `{"temp":55.2,"setpoint":"57","showF":true,"state":1,"timer":300,"bogus":9}`)

	if !snap.Valid {
		t.Fatalf("Valid = false, want true; state = %v", snap.State)
	}
	if got := snap.State[AttrShowF]; got != BoolValue(true) {
		t.Errorf("showF = %v, want true", got)
	}
	if got := snap.State[AttrSetpoint]; got != FloatValue(57) {
		t.Errorf("setpoint = %v, want 57", got)
	}
	if got := snap.State[AttrTimerSecs]; got != IntValue(300) {
		t.Errorf("timerSecs = %v, want 300", got)
	}
}

// ===== Validity =====

func TestValid(t *testing.T) {
	r := newTestRecord()
	fillValid(t, r)
	if !r.Valid() {
		t.Fatalf("Valid() = false, want true; state = %v", r.State())
	}

	for _, missing := range []Attribute{AttrTemp, AttrSetpoint, AttrShowF, AttrState, AttrTimerRunning, AttrTimerSecs} {
		t.Run("missing "+missing.String(), func(t *testing.T) {
			r := newTestRecord()
			fillValidExcept(t, r, missing)
			if r.Valid() {
				t.Errorf("Valid() = true, want false without %s; state = %v", missing, r.State())
			}
			if r.Snapshot().Valid {
				t.Errorf("Snapshot().Valid = true, want false without %s", missing)
			}
		})
	}

	// Running timer without an end time is not valid.
	r2 := newTestRecord()
	mustUpdate(t, r2, "temp", "55.2")
	mustUpdate(t, r2, "setpoint", "57.0")
	mustUpdate(t, r2, "showF", "0")
	mustUpdate(t, r2, "state", "1")
	mustUpdate(t, r2, "timerSecs", "300")
	mustUpdate(t, r2, "timerRunning", "1")
	if r2.Valid() {
		t.Error("Valid() = true, want false for running timer without timerEnd")
	}
	mustUpdate(t, r2, "timerEnd", "1700000000")
	if !r2.Valid() {
		t.Error("Valid() = false, want true once timerEnd is known")
	}
}

// ===== Provisional reconciliation =====

func TestApplyLocalChange_MarksProvisional(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")

	update, snap := r.ApplyLocalChange(SetSetpoint(55.0))

	if !snap.Provisional[AttrSetpoint] {
		t.Error("Provisional[setpoint] = false, want true")
	}
	if got := snap.State[AttrSetpoint]; got != FloatValue(55) {
		t.Errorf("State[setpoint] = %v, want 55", got)
	}
	if !snap.New {
		t.Error("New = false, want true")
	}
	if len(update) != 1 || update["setpoint"] != 55.0 {
		t.Errorf("update = %v, want map[setpoint:55]", update)
	}
}

func TestApplyLocalChange_IgnoresNonSettable(t *testing.T) {
	r := newTestRecord()

	update, snap := r.ApplyLocalChange(Delta{AttrTemp: FloatValue(99)})
	if len(update) != 0 {
		t.Errorf("update = %v, want empty", update)
	}
	if _, ok := snap.State[AttrTemp]; ok {
		t.Error("temp written to state, want ignored")
	}
	if snap.Provisional[AttrTemp] {
		t.Error("temp marked provisional, want ignored")
	}
}

func TestProvisional_InboundDoesNotOverwrite(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")
	r.ApplyLocalChange(SetSetpoint(55.0))

	// The device still reports the old value.
	snap := mustUpdate(t, r, "setpoint", "57.0")
	if got := snap.State[AttrSetpoint]; got != FloatValue(55) {
		t.Errorf("State[setpoint] = %v, want provisional 55 kept", got)
	}
	if !snap.Provisional[AttrSetpoint] {
		t.Error("Provisional[setpoint] cleared by non-matching confirmation")
	}
	if snap.New {
		t.Error("New = true, want false while provisional value holds")
	}
}

func TestProvisional_ClearedOnMatchingConfirmation(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")
	r.ApplyLocalChange(SetSetpoint(55.0))

	snap := mustUpdate(t, r, "setpoint", "55")
	if snap.Provisional[AttrSetpoint] {
		t.Error("Provisional[setpoint] = true, want cleared after matching confirmation")
	}
	if got := snap.State[AttrSetpoint]; got != FloatValue(55) {
		t.Errorf("State[setpoint] = %v, want 55", got)
	}

	// Back to normal: the next inbound value is written directly.
	snap = mustUpdate(t, r, "setpoint", "50")
	if got := snap.State[AttrSetpoint]; got != FloatValue(50) {
		t.Errorf("State[setpoint] = %v, want 50 after reconciliation", got)
	}
}

func TestEndProvisional_RevertsToConfirmed(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")
	r.ApplyLocalChange(SetSetpoint(55.0))

	snap := r.EndProvisional()

	if got := snap.State[AttrSetpoint]; got != FloatValue(57) {
		t.Errorf("State[setpoint] = %v, want reverted 57", got)
	}
	if snap.IsProvisional() {
		t.Errorf("IsProvisional() = true, want false; flags = %v", snap.Provisional)
	}
	if !snap.New {
		t.Error("New = false, want true after revert")
	}
}

func TestEndProvisional_UsesLatestConfirmation(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")
	r.ApplyLocalChange(SetSetpoint(55.0))
	mustUpdate(t, r, "setpoint", "56.5")

	snap := r.EndProvisional()
	if got := snap.State[AttrSetpoint]; got != FloatValue(56.5) {
		t.Errorf("State[setpoint] = %v, want latest confirmed 56.5", got)
	}
}

func TestEndProvisional_NeverConfirmedIsRemoved(t *testing.T) {
	r := newTestRecord()
	r.ApplyLocalChange(SetSetpoint(55.0))

	snap := r.EndProvisional()
	if _, ok := snap.State[AttrSetpoint]; ok {
		t.Errorf("State[setpoint] = %v, want removed", snap.State[AttrSetpoint])
	}
	if snap.Provisional[AttrSetpoint] {
		t.Error("Provisional[setpoint] = true after EndProvisional")
	}
}

func TestApplyLocalChange_RepeatKeepsOriginalConfirmed(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")
	r.ApplyLocalChange(SetSetpoint(55.0))
	r.ApplyLocalChange(SetSetpoint(53.0))

	snap := r.EndProvisional()
	if got := snap.State[AttrSetpoint]; got != FloatValue(57) {
		t.Errorf("State[setpoint] = %v, want device value 57", got)
	}
}

// ===== Timer update payload =====

func TestApplyLocalChange_TimerPayload(t *testing.T) {
	r := newTestRecord()
	fillValid(t, r)

	update, _ := r.ApplyLocalChange(Delta{
		AttrTimerEnd:     IntValue(1_700_000_300),
		AttrTimerRunning: BoolValue(true),
	})
	if len(update) != 1 || update["timer"] != int64(1_700_000_300) {
		t.Errorf("update = %v, want map[timer:1700000300]", update)
	}

	update, _ = r.ApplyLocalChange(SetTimer(90))
	if len(update) != 1 || update["timer"] != int64(90) {
		t.Errorf("update = %v, want map[timer:90]", update)
	}
}

func TestApplyRecipe_Payload(t *testing.T) {
	r := newTestRecord()

	update, snap := r.ApplyLocalChange(ApplyRecipe(Recipe{ID: 7, Title: "Eggs", Temp: 63.5, Time: 2700}))

	want := Update{
		"recipeID":    int64(7),
		"recipeTitle": "Eggs",
		"setpoint":    63.5,
		"state":       int64(1),
		"timer":       int64(2700),
	}
	if len(update) != len(want) {
		t.Fatalf("update = %v, want %v", update, want)
	}
	for k, v := range want {
		if update[k] != v {
			t.Errorf("update[%q] = %v (%T), want %v (%T)", k, update[k], update[k], v, v)
		}
	}
	if got := snap.ProvisionalAttributes(); len(got) != 6 {
		t.Errorf("ProvisionalAttributes() = %v, want 6 attributes", got)
	}
}

// ===== Snapshot encoding =====

func TestSnapshot_JSON(t *testing.T) {
	r := newTestRecord()
	mustUpdate(t, r, "setpoint", "57.0")
	r.ApplyLocalChange(TurnOn())

	data, err := json.Marshal(r.Snapshot())
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded struct {
		ID          string          `json:"id"`
		Provisional map[string]bool `json:"provisional"`
		State       map[string]any  `json:"state"`
		Valid       bool            `json:"valid"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded.ID != "1" {
		t.Errorf("id = %q, want %q", decoded.ID, "1")
	}
	if decoded.State["setpoint"] != 57.0 || decoded.State["state"] != 1.0 {
		t.Errorf("state = %v, want setpoint 57 and state 1", decoded.State)
	}
	if !decoded.Provisional["state"] {
		t.Errorf("provisional = %v, want state=true", decoded.Provisional)
	}
}

func TestState_UnmarshalJSON(t *testing.T) {
	var s State
	if err := json.Unmarshal([]byte(`{"setpoint":57,"showF":true,"recipeTitle":"Eggs","state":1,"old":3}`), &s); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	want := State{
		AttrSetpoint:    FloatValue(57),
		AttrShowF:       BoolValue(true),
		AttrRecipeTitle: StringValue("Eggs"),
		AttrState:       IntValue(1),
	}
	if !s.Equal(want) {
		t.Errorf("State = %v, want %v", s, want)
	}
}
