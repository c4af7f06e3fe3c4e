// Package ui renders the one-shot terminal output of intesis-cfg.
//
// Unlike the live dashboard in internal/tui, these components print once
// and return: a Header naming the command and its target, and a Result box
// reporting success, failure or a warning.
//
//	fmt.Println(ui.NewHeader("Validate", "intesis-cfg validate",
//	    ui.Detail{Key: "Device", Value: "192.168.1.50:80"}).Render())
//
//	fmt.Println(ui.NewFailureResult("Login rejected", err,
//	    []string{"Check the password of the web interface"}).Render())
//
// Output is plain when stdout is not a terminal; Plain reports that and
// callers print unstyled lines instead of boxes.
package ui
