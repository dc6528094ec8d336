// Package output provides styled terminal output helpers (success, error,
// warning, entity and activity formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/marcus/dealbook/internal/models"
)

var (
	// Styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	idStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	activityStyles = map[models.ActivityType]lipgloss.Style{
		models.ActivityAdd:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.ActivityUpdate: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.ActivityDelete: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// stdout is where every print helper writes.
var stdout io.Writer = os.Stdout

// SetWriter redirects output and returns a func restoring the previous writer.
func SetWriter(w io.Writer) (restore func()) {
	prev := stdout
	stdout = w
	return func() { stdout = prev }
}

// Format selects how documents are printed
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or yaml)", s)
}

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Fprintln(stdout, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Fprintln(stdout, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Fprintln(stdout, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Fprintln(stdout, fmt.Sprintf(format, args...))
}

// Print writes s unchanged
func Print(s string) {
	fmt.Fprint(stdout, s)
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(data))
	return nil
}

// YAML outputs data as YAML. v goes through JSON first so json tags and custom
// marshalers decide the field names.
func YAML(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeConflict     = "conflict"
	ErrCodeSyncFailed   = "sync_failed"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Fprintln(stdout, string(data))
}

// FormatValue renders a field value: strings verbatim, everything else as compact JSON.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// FormatEntityShort formats an entity on one line, truncated to width (0 = no limit).
func FormatEntityShort(e models.Entity, width int) string {
	parts := []string{idStyle.Render(e.ID()), e.DisplayName()}
	if ts, ok := e[models.FieldUpdatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			parts = append(parts, subtleStyle.Render(FormatTimeAgo(t)))
		}
	}
	return Truncate(strings.Join(parts, "  "), width)
}

// FormatEntityLong formats every field of an entity, id first, then sorted keys.
func FormatEntityLong(category string, e models.Entity) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", e.ID(), e.DisplayName())))
	sb.WriteString("\n")
	sb.WriteString(subtleStyle.Render(models.Singular(category)))
	sb.WriteString("\n")
	for _, k := range sortedKeys(e) {
		if k == models.FieldID {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, FormatValue(e[k])))
	}
	return sb.String()
}

// FormatCategory formats a category header and its entities, newest first.
func FormatCategory(category string, entities []models.Entity, width int) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader(fmt.Sprintf("%s (%d)", category, len(entities))))
	for _, e := range entities {
		sb.WriteString("  ")
		sb.WriteString(FormatEntityShort(e, width-2))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatSettings formats settings as sorted key: value lines.
func FormatSettings(settings map[string]interface{}) string {
	var sb strings.Builder
	for _, k := range sortedKeys(settings) {
		sb.WriteString(fmt.Sprintf("%s: %s\n", k, FormatValue(settings[k])))
	}
	return sb.String()
}

// FormatActivity formats one activity entry
// e.g., "[2024-03-01 10:00] + Added deal "Main St""
func FormatActivity(a models.ActivityEntry) string {
	symbols := map[models.ActivityType]string{
		models.ActivityAdd:    "+",
		models.ActivityUpdate: "~",
		models.ActivityDelete: "-",
	}
	symbol, ok := symbols[a.Type]
	if !ok {
		symbol = "?"
	}
	if style, ok := activityStyles[a.Type]; ok {
		symbol = style.Render(symbol)
	}
	return fmt.Sprintf("%s %s %s",
		subtleStyle.Render("["+a.At.Local().Format("2006-01-02 15:04")+"]"), symbol, a.Text)
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nDEALS (3):\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
