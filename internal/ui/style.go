package ui

import "github.com/charmbracelet/lipgloss"

var TitleStyle = lipgloss.NewStyle().Inline(true).Bold(true).Foreground(lipgloss.Color("252")).Render
var HelpStyle = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("241")).Render

var TableBorderStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

var StatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)

var ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
