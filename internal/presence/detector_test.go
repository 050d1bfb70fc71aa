// Tests for the transition detector and session tracker. Exercises
// [Detector.Step] over scripted snapshot sequences, covering the interruption
// tolerance window, game counting, clock skew, and Unknown snapshots.
package presence

import (
	"math"
	"testing"
	"time"
)

// t0 is the fixed origin for scripted sequences.
var t0 = time.Unix(1_714_000_000, 0)

// at returns t0 shifted by sec seconds.
func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

// rec builds a snapshot at t0+sec.
func rec(state State, game string, sec int) StatusRecord {
	return StatusRecord{State: state, Game: game, Time: at(sec)}
}

// kinds extracts event kinds for compact comparison.
func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// ///////////////////////////////////////////////
// Scenario Tests
// ///////////////////////////////////////////////

func TestStepScenarioOnlineGameOffline(t *testing.T) {
	d := Detector{OfflineInterrupt: 420 * time.Second}
	var k Known

	steps := []struct {
		snap StatusRecord
		want []EventKind
	}{
		{rec(Offline, "", 0), nil},
		{rec(Online, "", 10), []EventKind{OnlineOffline}},
		{rec(Online, "A", 40), []EventKind{GameChange}},
		{rec(Offline, "", 100), nil},
	}

	var all []Event
	for i, s := range steps {
		got := d.Step(&k, s.snap, s.snap.Time)
		all = append(all, got...)
		if len(got) != len(s.want) {
			t.Fatalf("step %d: got events %v, want %v", i, kinds(got), s.want)
		}
		for j := range got {
			if got[j].Kind != s.want[j] {
				t.Errorf("step %d event %d: kind = %v, want %v", i, j, got[j].Kind, s.want[j])
			}
		}
	}

	if all[0].State != Online {
		t.Errorf("first event state = %v, want online", all[0].State)
	}
	if all[1].Game != "A" {
		t.Errorf("game event game = %q, want %q", all[1].Game, "A")
	}
	if !k.Session.Open() {
		t.Fatal("session should remain open within the interruption window")
	}
	if !k.Session.Pending() {
		t.Error("interruption should be pending after Offline")
	}
	if !approx(k.Session.OnlineSeconds, 90) {
		t.Errorf("OnlineSeconds = %v, want 90", k.Session.OnlineSeconds)
	}
	if !approx(k.Session.PerGame["A"], 60) {
		t.Errorf("PerGame[A] = %v, want 60", k.Session.PerGame["A"])
	}
}

// ///////////////////////////////////////////////
// Interruption Window Tests
// ///////////////////////////////////////////////

func TestStepShortInterruptionKeepsSession(t *testing.T) {
	d := Detector{OfflineInterrupt: 420 * time.Second}
	var k Known

	d.Step(&k, rec(Offline, "", 0), at(0))
	d.Step(&k, rec(Online, "", 10), at(10))
	start := k.Session.OnlineStart

	d.Step(&k, rec(Online, "", 100), at(100))
	if ev := d.Step(&k, rec(Offline, "", 100), at(100)); len(ev) != 0 {
		t.Fatalf("offline blip emitted %v", kinds(ev))
	}
	if ev := d.Step(&k, rec(Offline, "", 250), at(250)); len(ev) != 0 {
		t.Fatalf("offline inside window emitted %v", kinds(ev))
	}
	if ev := d.Step(&k, rec(Online, "", 400), at(400)); len(ev) != 0 {
		t.Fatalf("resume emitted %v", kinds(ev))
	}

	if !k.Session.OnlineStart.Equal(start) {
		t.Errorf("OnlineStart = %v, want %v", k.Session.OnlineStart, start)
	}
	if k.Session.Pending() {
		t.Error("interruption should be cleared after resume")
	}
	// 90s before the gap; the gap itself is not counted.
	if !approx(k.Session.OnlineSeconds, 90) {
		t.Errorf("OnlineSeconds = %v, want 90", k.Session.OnlineSeconds)
	}

	d.Step(&k, rec(Online, "", 460), at(460))
	if !approx(k.Session.OnlineSeconds, 150) {
		t.Errorf("OnlineSeconds after resume = %v, want 150", k.Session.OnlineSeconds)
	}
}

func TestStepWindowExpiryFinalizesSession(t *testing.T) {
	d := Detector{OfflineInterrupt: 420 * time.Second}
	var k Known

	d.Step(&k, rec(Offline, "", 0), at(0))
	d.Step(&k, rec(Online, "A", 10), at(10))
	d.Step(&k, rec(Offline, "", 110), at(110))

	if ev := d.Step(&k, rec(Offline, "", 400), at(400)); len(ev) != 0 {
		t.Fatalf("window not yet elapsed, got %v", kinds(ev))
	}

	ev := d.Step(&k, rec(Offline, "", 600), at(600))
	if len(ev) != 1 || ev[0].Kind != OnlineOffline {
		t.Fatalf("got %v, want one OnlineOffline", kinds(ev))
	}
	if ev[0].State != Offline {
		t.Errorf("event state = %v, want offline", ev[0].State)
	}
	s := ev[0].Summary
	if s == nil {
		t.Fatal("closing event has no summary")
	}
	if !approx(s.OnlineSeconds, 100) {
		t.Errorf("summary OnlineSeconds = %v, want 100", s.OnlineSeconds)
	}
	if s.GamesPlayed != 1 {
		t.Errorf("summary GamesPlayed = %d, want 1", s.GamesPlayed)
	}
	if !s.End.Equal(at(110)) {
		t.Errorf("summary End = %v, want %v", s.End, at(110))
	}
	if k.Session.Open() {
		t.Error("session should be reset after finalize")
	}

	ev = d.Step(&k, rec(Online, "", 700), at(700))
	if len(ev) != 1 || ev[0].Kind != OnlineOffline || ev[0].State != Online {
		t.Fatalf("got %v, want new session OnlineOffline(online)", kinds(ev))
	}
	if !k.Session.OnlineStart.Equal(at(700)) {
		t.Errorf("new OnlineStart = %v, want %v", k.Session.OnlineStart, at(700))
	}
	if k.Session.OnlineSeconds != 0 {
		t.Errorf("new session OnlineSeconds = %v, want 0", k.Session.OnlineSeconds)
	}
}

func TestStepExpiryBeforeLateReturn(t *testing.T) {
	d := Detector{OfflineInterrupt: 420 * time.Second}
	var k Known

	d.Step(&k, rec(Online, "", 0), at(0))
	d.Step(&k, rec(Offline, "", 50), at(50))

	// The next observation arrives long after the window: the old session
	// closes first, then a new one opens.
	ev := d.Step(&k, rec(Online, "", 2000), at(2000))
	got := kinds(ev)
	if len(got) != 2 || got[0] != OnlineOffline || got[1] != OnlineOffline {
		t.Fatalf("got %v, want close then open", got)
	}
	if ev[0].State != Offline || ev[1].State != Online {
		t.Errorf("states = %v,%v, want offline,online", ev[0].State, ev[1].State)
	}
}

func TestStepUnknownDuringWindowStillExpires(t *testing.T) {
	d := Detector{OfflineInterrupt: 60 * time.Second}
	var k Known

	d.Step(&k, rec(Online, "", 0), at(0))
	d.Step(&k, rec(Offline, "", 10), at(10))

	ev := d.Step(&k, StatusRecord{State: Unknown, Time: at(100)}, at(100))
	if len(ev) != 1 || ev[0].Kind != OnlineOffline {
		t.Fatalf("got %v, want finalize on Unknown cycle", kinds(ev))
	}
}

func TestStepExpiryReportsSuspendedState(t *testing.T) {
	d := Detector{OfflineInterrupt: 420 * time.Second}
	var k Known

	d.Step(&k, rec(Online, "", 0), at(0))
	d.Step(&k, rec(Away, "", 60), at(60))
	d.Step(&k, rec(Offline, "", 120), at(120))
	if k.Session.SuspendedState != Away {
		t.Fatalf("SuspendedState = %v, want away", k.Session.SuspendedState)
	}

	ev := d.Step(&k, rec(Offline, "", 600), at(600))
	if len(ev) != 1 || ev[0].Kind != OnlineOffline {
		t.Fatalf("got %v, want finalize", kinds(ev))
	}
	if ev[0].PrevState != Away {
		t.Errorf("PrevState = %v, want away", ev[0].PrevState)
	}
}

func TestStepReopensMissingSession(t *testing.T) {
	d := Detector{OfflineInterrupt: 420 * time.Second}
	k := Known{Record: rec(Online, "Halo", 0), Since: at(0)}

	if ev := d.Step(&k, rec(Online, "Halo", 60), at(60)); len(ev) != 0 {
		t.Fatalf("got %v, want no events", kinds(ev))
	}
	if !k.Session.Open() {
		t.Fatal("session not reopened for active record")
	}

	d.Step(&k, rec(Online, "Halo", 120), at(120))
	if !approx(k.Session.OnlineSeconds, 60) {
		t.Errorf("OnlineSeconds = %v, want 60", k.Session.OnlineSeconds)
	}

	d.Step(&k, rec(Offline, "", 180), at(180))
	ev := d.Step(&k, rec(Offline, "", 700), at(700))
	if len(ev) != 1 || ev[0].Kind != OnlineOffline || ev[0].Summary == nil {
		t.Fatalf("got %v, want finalize with summary", kinds(ev))
	}
	if !approx(ev[0].Summary.OnlineSeconds, 120) {
		t.Errorf("Summary.OnlineSeconds = %v, want 120", ev[0].Summary.OnlineSeconds)
	}
	if ev[0].PrevGame != "Halo" {
		t.Errorf("PrevGame = %q, want Halo", ev[0].PrevGame)
	}
}

// ///////////////////////////////////////////////
// Game Tests
// ///////////////////////////////////////////////

func TestStepGameCounting(t *testing.T) {
	d := Detector{}
	var k Known

	d.Step(&k, rec(Online, "", 0), at(0))
	seq := []StatusRecord{
		rec(Online, "GameA", 10),
		rec(Online, "GameB", 70),
		rec(Online, "", 100),
	}
	var changes int
	for _, s := range seq {
		for _, e := range d.Step(&k, s, s.Time) {
			if e.Kind == GameChange {
				changes++
			}
		}
	}

	if changes != 3 {
		t.Errorf("GameChange events = %d, want 3", changes)
	}
	if k.Session.GamesPlayed != 2 {
		t.Errorf("GamesPlayed = %d, want 2", k.Session.GamesPlayed)
	}
	if !approx(k.Session.PerGame["GameA"], 60) {
		t.Errorf("PerGame[GameA] = %v, want 60", k.Session.PerGame["GameA"])
	}
	if !approx(k.Session.PerGame["GameB"], 30) {
		t.Errorf("PerGame[GameB] = %v, want 30", k.Session.PerGame["GameB"])
	}
}

func TestStepResumeSameGameNotCountedTwice(t *testing.T) {
	d := Detector{OfflineInterrupt: 420 * time.Second}
	var k Known

	d.Step(&k, rec(Online, "Halo", 0), at(0))
	d.Step(&k, rec(Offline, "", 60), at(60))
	ev := d.Step(&k, rec(Online, "Halo", 120), at(120))
	if len(ev) != 0 {
		t.Fatalf("resume with same game emitted %v", kinds(ev))
	}
	if k.Session.GamesPlayed != 1 {
		t.Errorf("GamesPlayed = %d, want 1", k.Session.GamesPlayed)
	}

	d.Step(&k, rec(Online, "Halo", 180), at(180))
	if !approx(k.Session.PerGame["Halo"], 120) {
		t.Errorf("PerGame[Halo] = %v, want 120", k.Session.PerGame["Halo"])
	}
}

func TestStepPresenceAndGameInOneCycle(t *testing.T) {
	d := Detector{}
	var k Known

	d.Step(&k, rec(Offline, "", 0), at(0))
	ev := d.Step(&k, rec(Online, "Forza", 30), at(30))
	got := kinds(ev)
	if len(got) != 2 || got[0] != OnlineOffline || got[1] != GameChange {
		t.Fatalf("got %v, want [OnlineOffline GameChange]", got)
	}
	if k.Record.Game != "Forza" || k.Record.State != Online {
		t.Errorf("record = %+v, want online/Forza", k.Record)
	}
}

// ///////////////////////////////////////////////
// Status and Tick Tests
// ///////////////////////////////////////////////

func TestStepAwayIsStatusChange(t *testing.T) {
	d := Detector{}
	var k Known

	d.Step(&k, rec(Online, "", 0), at(0))
	ev := d.Step(&k, rec(Away, "", 60), at(60))
	if len(ev) != 1 || ev[0].Kind != StatusChange {
		t.Fatalf("got %v, want StatusChange", kinds(ev))
	}
	if ev[0].PrevState != Online || ev[0].State != Away {
		t.Errorf("states = %v -> %v, want online -> away", ev[0].PrevState, ev[0].State)
	}

	// Away time is not counted as online.
	d.Step(&k, rec(Away, "", 200), at(200))
	if !approx(k.Session.OnlineSeconds, 60) {
		t.Errorf("OnlineSeconds = %v, want 60", k.Session.OnlineSeconds)
	}
	if !k.Session.Open() {
		t.Error("Away must keep the session open")
	}
}

func TestStepIdenticalSnapshotsMonotonic(t *testing.T) {
	d := Detector{}
	var k Known

	d.Step(&k, rec(Offline, "", 0), at(0))
	first := d.Step(&k, rec(Online, "", 10), at(10))
	if len(first) != 1 {
		t.Fatalf("first transition events = %d, want 1", len(first))
	}

	last := k.Session.OnlineSeconds
	for sec := 20; sec <= 300; sec += 10 {
		if ev := d.Step(&k, rec(Online, "", sec), at(sec)); len(ev) != 0 {
			t.Fatalf("identical snapshot at %d emitted %v", sec, kinds(ev))
		}
		if k.Session.OnlineSeconds <= last {
			t.Fatalf("OnlineSeconds not increasing at %d: %v <= %v", sec, k.Session.OnlineSeconds, last)
		}
		last = k.Session.OnlineSeconds
	}
}

func TestStepClockSkewCountsZero(t *testing.T) {
	d := Detector{}
	var k Known

	d.Step(&k, rec(Online, "", 100), at(100))
	d.Step(&k, rec(Online, "", 50), at(50))
	if k.Session.OnlineSeconds != 0 {
		t.Errorf("OnlineSeconds after backwards clock = %v, want 0", k.Session.OnlineSeconds)
	}
	d.Step(&k, rec(Online, "", 80), at(80))
	if !approx(k.Session.OnlineSeconds, 30) {
		t.Errorf("OnlineSeconds = %v, want 30", k.Session.OnlineSeconds)
	}
}

func TestStepUnknownHoldsState(t *testing.T) {
	d := Detector{}
	var k Known

	d.Step(&k, rec(Online, "Halo", 0), at(0))
	before := k
	ev := d.Step(&k, StatusRecord{State: Unknown, Time: at(60)}, at(60))
	if len(ev) != 0 {
		t.Fatalf("Unknown emitted %v", kinds(ev))
	}
	if k.Record != before.Record {
		t.Errorf("record changed on Unknown: %+v -> %+v", before.Record, k.Record)
	}

	// Held state was Online, so the time is credited on the next reading.
	d.Step(&k, rec(Online, "Halo", 120), at(120))
	if !approx(k.Session.OnlineSeconds, 120) {
		t.Errorf("OnlineSeconds = %v, want 120", k.Session.OnlineSeconds)
	}
}

func TestStepBaselineEmitsNothing(t *testing.T) {
	d := Detector{}
	var k Known

	ev := d.Step(&k, rec(Online, "Halo", 0), at(0))
	if len(ev) != 0 {
		t.Fatalf("baseline emitted %v", kinds(ev))
	}
	if !k.Session.Open() || k.Session.GamesPlayed != 1 {
		t.Errorf("baseline session = %+v, want open with 1 game", k.Session)
	}
	if !k.Baselined() {
		t.Error("Baselined() = false after first reading")
	}
}

func TestKnownActive(t *testing.T) {
	d := Detector{}
	var k Known
	d.Step(&k, rec(Online, "", 0), at(0))
	d.Step(&k, rec(Offline, "", 30), at(30))
	if !k.Active() {
		t.Error("Active() = false during pending interruption")
	}
}
