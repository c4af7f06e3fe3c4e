package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// ErrNotTerminal is returned by Run when stdout is not a terminal
var ErrNotTerminal = errors.New("watch needs an interactive terminal")

// Run shows the live dashboard for ctrl until the user quits or ctx ends
func Run(ctx context.Context, ctrl Controller) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return ErrNotTerminal
	}

	m := NewDashboardModel(ctrl)
	defer m.Close()
	if w, h, err := term.GetSize(fd); err == nil {
		m.Width, m.Height = w, h
		m.Help.Width = w
	}

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
