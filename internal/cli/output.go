package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"neo-trader/internal/models"
	"neo-trader/internal/session"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	boldStyle = lipgloss.NewStyle().Bold(true)
)

// Output handles formatted output for the panel.
type Output struct {
	writer       io.Writer
	format       string
	colorEnabled bool
}

// NewOutput creates a new Output instance. Unknown formats fall back to text.
func NewOutput(w io.Writer, format string, colorEnabled bool) *Output {
	switch format {
	case FormatJSON, FormatYAML:
	default:
		format = FormatText
	}
	return &Output{
		writer:       w,
		format:       format,
		colorEnabled: colorEnabled && format == FormatText,
	}
}

// Format returns the active output format.
func (o *Output) Format() string {
	return o.format
}

// IsStructured reports whether output is JSON or YAML.
func (o *Output) IsStructured() bool {
	return o.format != FormatText
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.writer
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.styled(successStyle, "✓ ", format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.styled(errorStyle, "✗ ", format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.styled(warningStyle, "⚠ ", format, args...)
}

// Info prints an info message.
func (o *Output) Info(format string, args ...interface{}) {
	o.styled(infoStyle, "", format, args...)
}

// Dim prints a muted message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.styled(mutedStyle, "", format, args...)
}

// Header prints a section header.
func (o *Output) Header(format string, args ...interface{}) {
	o.styled(headerStyle, "", format, args...)
}

func (o *Output) styled(style lipgloss.Style, icon, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o.colorEnabled {
		fmt.Fprintln(o.writer, style.Render(icon)+msg)
		return
	}
	fmt.Fprintln(o.writer, icon+msg)
}

// render applies style when colour is enabled.
func (o *Output) render(style lipgloss.Style, text string) string {
	if o.colorEnabled {
		return style.Render(text)
	}
	return text
}

// Bold returns bold text.
func (o *Output) Bold(text string) string {
	return o.render(boldStyle, text)
}

// Muted returns muted text.
func (o *Output) Muted(text string) string {
	return o.render(mutedStyle, text)
}

// JSON outputs data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// YAML outputs data as YAML.
func (o *Output) YAML(data interface{}) error {
	encoder := yaml.NewEncoder(o.writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

// Structured writes data in the active structured format.
func (o *Output) Structured(data interface{}) error {
	if o.format == FormatYAML {
		return o.YAML(data)
	}
	return o.JSON(data)
}

// Payload prints a broker response verbatim. Text mode indents it as JSON;
// values that cannot be encoded are printed with %v.
func (o *Output) Payload(resp models.Response) {
	if o.format == FormatYAML {
		if err := o.YAML(resp); err != nil {
			o.Printf("%v\n", resp)
		}
		return
	}
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		o.Printf("%v\n", resp)
		return
	}
	o.Println(string(data))
}

// resultView is the structured rendering of a session.Result.
type resultView struct {
	Operation   session.Operation  `json:"operation" yaml:"operation"`
	Environment models.Environment `json:"environment" yaml:"environment"`
	OK          bool               `json:"ok" yaml:"ok"`
	Kind        string             `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message     string             `json:"message" yaml:"message"`
	Warning     string             `json:"warning,omitempty" yaml:"warning,omitempty"`
	Response    models.Response    `json:"response,omitempty" yaml:"response,omitempty"`
}

// Result prints the outcome of a controller operation: a status line and
// the raw response, or the structured form of both.
func (o *Output) Result(res session.Result) {
	if o.IsStructured() {
		view := resultView{
			Operation:   res.Op,
			Environment: res.Env,
			OK:          res.OK(),
			Kind:        string(res.Kind()),
			Message:     res.Message(),
			Warning:     res.Warning,
		}
		if hasPayload(res.Response) {
			view.Response = res.Response
		}
		if err := o.Structured(view); err != nil {
			o.Printf("%s\n", res.Message())
		}
		return
	}

	switch {
	case !res.OK():
		o.Error("%s", res.Message())
	case res.Warning != "":
		o.Warning("%s", res.Warning)
	default:
		o.Success("%s", res.Message())
	}
	if hasPayload(res.Response) {
		o.Payload(res.Response)
	}
}

// hasPayload reports whether resp carries anything worth printing.
func hasPayload(resp models.Response) bool {
	switch r := resp.(type) {
	case nil:
		return false
	case session.AuthResponses:
		return r.Login != nil || r.Validate != nil
	}
	return true
}

// Table prints rows under headers. In structured modes the rows are
// emitted as a list of objects keyed by lower-cased header.
func (o *Output) Table(headers []string, rows [][]string) error {
	if o.IsStructured() {
		records := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			rec := make(map[string]string, len(headers))
			for i, h := range headers {
				if i < len(row) {
					rec[strings.ToLower(strings.ReplaceAll(h, " ", "_"))] = row[i]
				}
			}
			records = append(records, rec)
		}
		return o.Structured(records)
	}

	table := tablewriter.NewWriter(o.writer)
	table.SetHeader(headers)
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("│")
	table.SetColumnSeparator("│")
	table.SetRowSeparator("─")
	table.SetHeaderLine(true)
	table.SetTablePadding(" ")
	table.AppendBulk(rows)
	table.Render()
	return nil
}

// KeyValue prints aligned key/value pairs.
func (o *Output) KeyValue(pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	for _, p := range pairs {
		o.Printf("%s  %s\n", o.Muted(fmt.Sprintf("%-*s", width, p[0])), p[1])
	}
}

// MarketStatus returns a coloured market status label.
func (o *Output) MarketStatus(status models.MarketStatus) string {
	switch status {
	case models.MarketOpen:
		return o.render(successStyle, "● OPEN")
	case models.MarketClosed:
		return o.render(errorStyle, "● CLOSED")
	case models.MarketPreOpen:
		return o.render(warningStyle, "● PRE-OPEN")
	case models.MarketMISSquareOffWarn:
		return o.render(warningStyle, "⚠ MIS SQUAREOFF")
	default:
		return string(status)
	}
}

// State returns a coloured session state label.
func (o *Output) State(state session.State) string {
	switch state {
	case session.StateAuthenticated:
		return o.render(successStyle, string(state))
	case session.StateLoginFailed:
		return o.render(errorStyle, string(state))
	case session.StateClientReady:
		return o.render(warningStyle, string(state))
	default:
		return o.render(mutedStyle, string(state))
	}
}
