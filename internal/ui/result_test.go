package ui

import (
	"errors"
	"strings"
	"testing"
)

func TestResultText(t *testing.T) {
	r := NewSuccessResult("Credentials accepted",
		Detail{Key: "Serial", Value: "SN1234567"},
		Detail{Key: "Firmware", Value: "1.3.3"},
	)

	got := r.Text()
	want := "✓ Credentials accepted\n  Serial: SN1234567\n  Firmware: 1.3.3"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestFailureText(t *testing.T) {
	r := NewFailureResult("invalid_auth", errors.New("authentication failed"), []string{"Check the password"})

	got := r.Text()
	for _, want := range []string{"✗ invalid_auth", "Error: authentication failed", "Troubleshooting:", "- Check the password"} {
		if !strings.Contains(got, want) {
			t.Errorf("Text() missing %q:\n%s", want, got)
		}
	}
}

func TestRenderKeepsDetailOrder(t *testing.T) {
	r := NewWarningResult("Corrected").SetWidth(80)
	r.AddDetail("first", "1").AddDetail("second", "2").AddDetail("third", "3")

	out := r.Render()
	if !strings.Contains(out, "WARNING") {
		t.Errorf("Render() missing WARNING label:\n%s", out)
	}
	a, b, c := strings.Index(out, "first"), strings.Index(out, "second"), strings.Index(out, "third")
	if a < 0 || b < a || c < b {
		t.Errorf("details out of order (%d, %d, %d):\n%s", a, b, c, out)
	}
}

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Validate", "intesis-cfg validate", Detail{Key: "Device", Value: "192.168.1.50"}).
		SetWidth(70).
		Render()

	for _, want := range []string{"VALIDATE", "intesis-cfg validate", "Device:", "192.168.1.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}

func TestNarrowWidthClamped(t *testing.T) {
	r := NewSuccessResult("ok").SetWidth(10)
	for _, line := range strings.Split(r.Render(), "\n") {
		if w := len([]rune(line)); w > 0 && w < MinTerminalWidth-2 {
			t.Errorf("line width %d below minimum: %q", w, line)
		}
	}
}
