package main

import "github.com/charmbracelet/lipgloss"

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)
