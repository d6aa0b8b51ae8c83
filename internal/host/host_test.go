package host

import (
	"bytes"
	"slices"
	"testing"
)

func TestConsoleMessage(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Message("Update requested")
	c.Message("done")
	if got, want := buf.String(), "Update requested\ndone\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsoleInvoke(t *testing.T) {
	c := NewConsole(&bytes.Buffer{})
	var ran int
	c.AddMenuAction("/Settings/Music/Update BD", "setting", func() { ran++ })

	if !c.Invoke("/Settings/Music/Update BD") {
		t.Fatal("Invoke returned false for a registered path")
	}
	if c.Invoke("/Settings/Other") {
		t.Error("Invoke returned true for an unknown path")
	}
	if ran != 1 {
		t.Errorf("action ran %d times, want 1", ran)
	}

	actions := c.Actions()
	if len(actions) != 1 || actions[0].Group != "setting" {
		t.Errorf("Actions = %+v", actions)
	}
}

func TestConsoleShutdownOrderAndOnce(t *testing.T) {
	c := NewConsole(&bytes.Buffer{})
	var order []string
	c.RegisterModule("net", func() { order = append(order, "net") })
	c.RegisterModule("mpd", func() { order = append(order, "mpd") })

	if got := c.Modules(); !slices.Equal(got, []string{"net", "mpd"}) {
		t.Errorf("Modules = %v", got)
	}

	c.Shutdown()
	c.Shutdown()
	if !slices.Equal(order, []string{"mpd", "net"}) {
		t.Errorf("shutdown order = %v, want [mpd net]", order)
	}
}

func TestConsoleRegisterReplaces(t *testing.T) {
	c := NewConsole(&bytes.Buffer{})
	var got string
	c.RegisterModule("mpd", func() { got = "first" })
	c.RegisterModule("mpd", func() { got = "second" })

	if n := len(c.Modules()); n != 1 {
		t.Errorf("modules = %d, want 1", n)
	}
	c.Shutdown()
	if got != "second" {
		t.Errorf("ran %q hook, want second", got)
	}
}
