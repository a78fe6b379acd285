package event

import "testing"

func TestParsePing(t *testing.T) {
	ev, ok := Parse("`[23:05:23]` `[mta]` **tybug** is at shop (-120,64,767)")
	if !ok {
		t.Fatal("expected a match")
	}
	if ev.Username != "tybug" {
		t.Errorf("username = %q", ev.Username)
	}
	if ev.SnitchName != "shop" {
		t.Errorf("snitch name = %q", ev.SnitchName)
	}
	if ev.NamelayerGroup != "mta" {
		t.Errorf("group = %q", ev.NamelayerGroup)
	}
	if ev.X != -120 || ev.Y != 64 || ev.Z != 767 {
		t.Errorf("coords = (%d,%d,%d)", ev.X, ev.Y, ev.Z)
	}
}

func TestParseLoginLogout(t *testing.T) {
	for _, line := range []string{
		"`[00:00:01]` `[mta-citizens]` **Gregy165** logged in at tower (480,70,-2439)",
		"`[00:00:01]` `[mta-citizens]` **Gregy165** logged out at tower (480,70,-2439)",
	} {
		if _, ok := Parse(line); !ok {
			t.Errorf("expected a match for %q", line)
		}
	}
}

func TestParseUnnamedSnitch(t *testing.T) {
	ev, ok := Parse("`[12:30:00]` `[sc]` **someone** is at  (1,2,3)")
	if !ok {
		t.Fatal("expected a match")
	}
	if ev.SnitchName != "" {
		t.Errorf("expected empty snitch name, got %q", ev.SnitchName)
	}
}

func TestParseSpacedCoordinates(t *testing.T) {
	ev, ok := Parse("`[12:30:00]` `[sc]` **someone** is at gate (-1, -2, -3)")
	if !ok {
		t.Fatal("expected a match")
	}
	if ev.X != -1 || ev.Y != -2 || ev.Z != -3 {
		t.Errorf("coords = (%d,%d,%d)", ev.X, ev.Y, ev.Z)
	}
}

func TestParseRejectsOrdinaryChat(t *testing.T) {
	for _, line := range []string{
		"",
		"hello world",
		"tybug is at shop (-120,64,767)",                              // no markdown wrapping
		"`[23:05:23]` **tybug** is at shop (-120,64,767)",             // missing group
		"`[23:05:23]` `[mta]` **tybug** teleported to shop (1,2,3)",   // unknown verb
		"`[23:05:23]` `[mta]` **tybug** is at shop (-120,64)",         // two coordinates
		"`[23:05:23]` `[mta]` **tybug** is at shop (a,b,c)",           // non-numeric
		"`[2:05:23]` `[mta]` **tybug** is at shop (-120,64,767)",      // malformed clock
		"so anyway, then he said `[mta]` **tybug** is at shop (1,2,3)", // prefixed chatter
	} {
		if _, ok := Parse(line); ok {
			t.Errorf("expected no match for %q", line)
		}
	}
}

func TestParseIsDeterministic(t *testing.T) {
	const line = "`[23:05:23]` `[mta]` **tybug** is at shop (-120,64,767)"
	a, okA := Parse(line)
	b, okB := Parse(line)
	if okA != okB || a != b {
		t.Fatalf("parse not deterministic: %+v vs %+v", a, b)
	}
}
