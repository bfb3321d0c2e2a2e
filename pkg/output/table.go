package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ServerSummary contains one row of the server status table.
type ServerSummary struct {
	ID        string
	Name      string
	Transport string // STDIO, SSE, STREAMABLE_HTTP
	State     string // READY, CONNECTING, DISCONNECTED, ...
	LatencyMs int64
	Failures  int
	LastError string
}

// ToolSummary contains one row of the tool listing table.
type ToolSummary struct {
	Server      string
	Tool        string
	Description string
}

// Servers prints the server status table.
func (p *Printer) Servers(servers []ServerSummary) {
	if len(servers) == 0 {
		p.Println("no servers registered")
		return
	}

	p.Println()

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"ID", "Name", "Transport", "State", "Latency", "Failures", "Last Error"})

	for _, s := range servers {
		state := s.State
		if p.isTTY {
			state = colorState(s.State)
		}
		latency := ""
		if s.LatencyMs > 0 {
			latency = fmt.Sprintf("%dms", s.LatencyMs)
		}
		t.AppendRow(table.Row{s.ID, s.Name, s.Transport, state, latency, s.Failures, truncate(s.LastError, 48)})
	}

	t.Render()
	p.Println()
}

// Tools prints the aggregated tool catalogue table.
func (p *Printer) Tools(tools []ToolSummary) {
	if len(tools) == 0 {
		p.Println("no tools available")
		return
	}

	p.Section("TOOLS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"Server", "Tool", "Description"})
	for _, tool := range tools {
		t.AppendRow(table.Row{tool.Server, tool.Tool, truncate(tool.Description, 64)})
	}

	t.Render()
	p.Println()
}

// colorState applies color to a connection state.
func colorState(state string) string {
	var style lipgloss.Style
	switch strings.ToUpper(state) {
	case "READY":
		style = lipgloss.NewStyle().Foreground(ColorGreen)
	case "DISCONNECTED":
		style = lipgloss.NewStyle().Foreground(ColorRed)
	case "CONNECTING", "INITIALIZING":
		style = lipgloss.NewStyle().Foreground(ColorTeal)
	case "CLOSED", "DISABLED":
		style = lipgloss.NewStyle().Foreground(ColorMuted)
	default:
		style = lipgloss.NewStyle().Foreground(ColorGray)
	}
	return style.Render(state)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// tableStyle returns the standard teal-themed table style.
func (p *Printer) tableStyle() table.Style {
	style := table.StyleRounded
	if p.isTTY {
		style.Color.Header = text.Colors{text.FgHiCyan, text.Bold}
		style.Color.Border = text.Colors{text.FgHiBlack}
	}
	style.Options.SeparateRows = false
	return style
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	if p.isTTY {
		style := lipgloss.NewStyle().Foreground(ColorTeal).Bold(true)
		p.Println(style.Render(title))
	} else {
		p.Println(title)
	}
}
