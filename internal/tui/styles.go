package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	stoppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Width(16)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Width(16)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Width(8).Align(lipgloss.Right)
	barStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#48bb78"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f56565"))
	activeStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f56565"))
	graphStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("49"))
)
