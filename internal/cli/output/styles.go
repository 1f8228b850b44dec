package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	ID      lipgloss.Style
	PII     lipgloss.Style
}

// NewStyles returns colored styles for a terminal and plain ones otherwise.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header: plain, Bold: plain, Muted: plain, Success: plain,
			Warning: plain, Error: plain, Info: plain, ID: plain, PII: plain,
		}
	}
	return &Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		ID:      lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		PII:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	}
}

// Severity returns the style for an impact severity name.
func (s *Styles) Severity(sev string) lipgloss.Style {
	switch sev {
	case "critical", "high":
		return s.Error
	case "medium":
		return s.Warning
	case "low":
		return s.Info
	}
	return s.Muted
}

// Classification returns the style for a column classification.
func (s *Styles) Classification(c core.Classification) lipgloss.Style {
	switch c {
	case core.ClassRestricted:
		return s.Error
	case core.ClassConfidential:
		return s.Warning
	case core.ClassInternal:
		return s.Info
	}
	return s.Muted
}
