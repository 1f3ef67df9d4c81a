package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sys/unix"
)

// Styles holds the lipgloss styles for listing output.
type Styles struct {
	Dir     lipgloss.Style
	Symlink lipgloss.Style
	Special lipgloss.Style
	Inode   lipgloss.Style
}

// NewStyles creates the default color styles.
func NewStyles() Styles {
	return Styles{
		Dir:     lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true), // bold blue
		Symlink: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),            // cyan
		Special: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),            // yellow
		Inode:   lipgloss.NewStyle().Faint(true),
	}
}

// NoStyles returns styles with no coloring.
func NoStyles() Styles {
	return Styles{
		Dir:     lipgloss.NewStyle(),
		Symlink: lipgloss.NewStyle(),
		Special: lipgloss.NewStyle(),
		Inode:   lipgloss.NewStyle(),
	}
}

// StylesFor picks styles for a color mode of auto, always or never.
func StylesFor(mode string) Styles {
	switch mode {
	case "always":
		return NewStyles()
	case "auto":
		if StdoutIsTerminal() {
			return NewStyles()
		}
	}
	return NoStyles()
}

// IsTerminal checks if the given file descriptor is a terminal using ioctl.
func IsTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

// StdoutIsTerminal returns true if stdout is a terminal.
func StdoutIsTerminal() bool {
	return IsTerminal(os.Stdout.Fd())
}
