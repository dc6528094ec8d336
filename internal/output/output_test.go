package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/dealbook/internal/models"
)

// capture redirects output for the duration of the test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(SetWriter(&buf))
	return &buf
}

// TestFormatTimeAgoJustNow tests times less than a minute ago
func TestFormatTimeAgoJustNow(t *testing.T) {
	now := time.Now()
	for _, tm := range []time.Time{now, now.Add(-30 * time.Second), now.Add(-59 * time.Second)} {
		if result := FormatTimeAgo(tm); result != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, result)
		}
	}
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Minute, "1m ago"},
		{30 * time.Minute, "30m ago"},
		{1 * time.Hour, "1h ago"},
		{23 * time.Hour, "23h ago"},
		{24 * time.Hour, "1d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}
	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		if result := FormatTimeAgo(tm); result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDate tests times a week or more ago fall back to a date
func TestFormatTimeAgoDate(t *testing.T) {
	tm := time.Now().Add(-30 * 24 * time.Hour)
	if result := FormatTimeAgo(tm); result != tm.Format("2006-01-02") {
		t.Errorf("FormatTimeAgo = %q, want %q", result, tm.Format("2006-01-02"))
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestPrintHelpers(t *testing.T) {
	buf := capture(t)
	Success("saved %d", 2)
	Warning("careful")
	Error("broken")
	Info("plain")

	out := ansi.Strip(buf.String())
	for _, want := range []string{"saved 2", "Warning: careful", "ERROR: broken", "plain"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONAndYAML(t *testing.T) {
	doc := models.NewDocument("dev")
	doc.Categories[models.CategoryDeals] = []models.Entity{{"id": "dea_1", "name": "Main"}}

	buf := capture(t)
	if err := JSON(doc); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"activityLog": []`) {
		t.Errorf("JSON output missing activityLog:\n%s", buf.String())
	}

	buf.Reset()
	if err := YAML(doc); err != nil {
		t.Fatalf("YAML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"categories:", "name: Main", "syncMeta:", "clientId: dev"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONError(t *testing.T) {
	buf := capture(t)
	JSONError(ErrCodeConflict, `remote "changed"`)
	want := `{"error":{"code":"conflict","message":"remote \"changed\""}}` + "\n"
	if buf.String() != want {
		t.Errorf("JSONError = %q, want %q", buf.String(), want)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{float64(3), "3"},
		{true, "true"},
		{[]interface{}{"a", "b"}, `["a","b"]`},
		{map[string]interface{}{"k": 1}, `{"k":1}`},
	}
	for _, tc := range tests {
		if got := FormatValue(tc.in); got != tc.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatEntityShort(t *testing.T) {
	e := models.Entity{
		"id":        "dea_1",
		"name":      "Tower A",
		"updatedAt": models.FormatTime(time.Now()),
	}
	got := ansi.Strip(FormatEntityShort(e, 0))
	if got != "dea_1  Tower A  just now" {
		t.Errorf("FormatEntityShort = %q", got)
	}

	short := FormatEntityShort(e, 10)
	if w := ansi.StringWidth(short); w > 10 {
		t.Errorf("truncated width = %d, want <= 10", w)
	}
	if !strings.HasSuffix(ansi.Strip(short), "...") {
		t.Errorf("truncated output should end with ellipsis: %q", ansi.Strip(short))
	}
}

func TestFormatEntityLong(t *testing.T) {
	e := models.Entity{"id": "pro_1", "address": "1 Main St", "units": float64(4)}
	got := ansi.Strip(FormatEntityLong(models.CategoryProperties, e))
	want := "pro_1: 1 Main St\nproperty\n  address: 1 Main St\n  units: 4\n"
	if got != want {
		t.Errorf("FormatEntityLong =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatCategory(t *testing.T) {
	entities := []models.Entity{{"id": "con_2", "fullName": "B"}, {"id": "con_1", "fullName": "A"}}
	got := ansi.Strip(FormatCategory(models.CategoryContacts, entities, 0))
	if !strings.HasPrefix(got, "\nCONTACTS (2):\n") {
		t.Errorf("missing header: %q", got)
	}
	if strings.Index(got, "con_2") > strings.Index(got, "con_1") {
		t.Errorf("entities out of order: %q", got)
	}
}

func TestFormatSettings(t *testing.T) {
	got := FormatSettings(map[string]interface{}{"theme": "dark", "currency": "EUR"})
	if got != "currency: EUR\ntheme: dark\n" {
		t.Errorf("FormatSettings = %q", got)
	}
}

func TestFormatActivity(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	tests := []struct {
		typ    models.ActivityType
		symbol string
	}{
		{models.ActivityAdd, "+"},
		{models.ActivityUpdate, "~"},
		{models.ActivityDelete, "-"},
		{"other", "?"},
	}
	for _, tc := range tests {
		got := ansi.Strip(FormatActivity(models.ActivityEntry{Text: "did it", At: at, Type: tc.typ}))
		want := "[2024-03-01 10:00] " + tc.symbol + " did it"
		if got != want {
			t.Errorf("FormatActivity(%s) = %q, want %q", tc.typ, got, want)
		}
	}
}

func TestSectionHeader(t *testing.T) {
	if got := SectionHeader("deals"); got != "\nDEALS:\n" {
		t.Errorf("SectionHeader = %q", got)
	}
}

func TestIndentString(t *testing.T) {
	if got := IndentString("a\nb", 2); got != "  a\n  b" {
		t.Errorf("IndentString = %q", got)
	}
	if got := IndentString("", 2); got != "" {
		t.Errorf("IndentString(empty) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("Truncate(0) = %q", got)
	}
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate(10) = %q", got)
	}
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate(8) = %q", got)
	}
}

func TestTerminalWidthFallback(t *testing.T) {
	t.Setenv("COLUMNS", "")
	// not a terminal under go test
	if got := TerminalWidth(0); got != 80 {
		t.Skipf("stdout is a terminal (width %d)", got)
	}
	t.Setenv("COLUMNS", "120")
	if got := TerminalWidth(0); got != 120 {
		t.Errorf("TerminalWidth with COLUMNS = %d, want 120", got)
	}
}
