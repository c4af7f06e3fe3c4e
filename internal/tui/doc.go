// Package tui implements the live terminal dashboard behind `intesis-cfg watch`.
//
// The dashboard subscribes to a climate controller and redraws on every
// status change: polls, optimistic writes, confirmations and reverts. Rows
// for datapoints with an unconfirmed write show a spinner until the device
// reports the value back.
//
// Keys:
//
//	↑/↓ or k/j    select a row
//	←/→ or -/+    cycle the mode, or step the setpoint by the temperature step
//	space or p    power on/off
//	r             refresh now
//	?             help
//	q             quit
//
// Built on Bubble Tea with bubbles (spinner, help, key) and lipgloss.
package tui
