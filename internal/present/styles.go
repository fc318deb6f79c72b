package present

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles shared by the commands and the progress UI.
type Styles struct {
	AppName      lipgloss.Style
	CliArgs      lipgloss.Style
	Comment      lipgloss.Style
	SearchList   lipgloss.Style
	ErrorHeader  lipgloss.Style
	ErrorDetails lipgloss.Style
	ErrPadding   lipgloss.Style
	Flag         lipgloss.Style
	FlagComma    lipgloss.Style
	FlagDesc     lipgloss.Style
	InlineCode   lipgloss.Style
	Link         lipgloss.Style
	Pipe         lipgloss.Style
	Quote        lipgloss.Style
	ID           lipgloss.Style
	Timeago      lipgloss.Style
	Tool         lipgloss.Style
	Warning      lipgloss.Style
	Success      lipgloss.Style
}

// MakeStyles creates the styles for the given renderer.
func MakeStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		AppName:      r.NewStyle().Bold(true),
		CliArgs:      r.NewStyle().Foreground(lipgloss.Color("#585858")),
		Comment:      r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#757575"}),
		SearchList:   r.NewStyle().Padding(0, 1),
		ErrorHeader:  r.NewStyle().Foreground(lipgloss.Color("#F1F1F1")).Background(lipgloss.Color("#FF5F87")).Bold(true).Padding(0, 1).SetString("ERROR"),
		ErrorDetails: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#757575"}),
		ErrPadding:   r.NewStyle().Padding(0, 1),
		Flag:         r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00B594", Dark: "#3EEFCF"}).Bold(true),
		FlagComma:    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5DD6C0", Dark: "#427C72"}).SetString(","),
		FlagDesc:     r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5A5A5A", Dark: "#CCCCCC"}),
		InlineCode:   r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Background(lipgloss.Color("#3A3A3A")).Padding(0, 1),
		Link:         r.NewStyle().Foreground(lipgloss.Color("#00AF87")).Underline(true),
		Pipe:         r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8470FF", Dark: "#745CFF"}),
		Quote:        r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF71D0", Dark: "#FF78FC"}),
		ID:           r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#917F8B", Dark: "#FF87D7"}),
		Timeago:      r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#999", Dark: "#555"}),
		Tool:         r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00B594", Dark: "#3EEFCF"}),
		Warning:      r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D7875F", Dark: "#FFAF5F"}),
		Success:      r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00875F", Dark: "#5FD787"}),
	}
}
