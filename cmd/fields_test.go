package cmd

import (
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"3", float64(3)},
		{"4.5", 4.5},
		{"true", true},
		{"null", nil},
		{`"quoted"`, "quoted"},
		{`["a","b"]`, []any{"a", "b"}},
		{`{"k":1}`, map[string]any{"k": float64(1)}},
		{"Main St", "Main St"},
		{"", ""},
		{"555-0100", "555-0100"},
		{"{broken", "{broken"},
	}
	for _, tc := range tests {
		if got := parseValue(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseValue(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"name=Tower A", "units=4", "note=a=b", "units=5", "empty="})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	want := map[string]any{"name": "Tower A", "units": float64(5), "note": "a=b", "empty": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	for _, bad := range []string{"novalue", "=x", " =x"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) should fail", bad)
		}
	}
}

func TestFieldsFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addFieldsFlag(fs)

	if err := fs.Parse([]string{"-f", "name=Tower", "--field", "units=4"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := collectFields(fs, []string{"units=6", "open=true"})
	if err != nil {
		t.Fatalf("collectFields: %v", err)
	}
	want := map[string]any{"name": "Tower", "units": float64(6), "open": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	if err := fs.Parse([]string{"-f", "oops"}); err == nil {
		t.Error("a flag value without '=' should be rejected")
	}

	sv := fs.Lookup("field").Value.(pflag.SliceValue)
	if err := sv.Replace([]string{"a=1"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := sv.GetSlice(); len(got) != 1 || got[0] != "a=1" {
		t.Errorf("after replace: %v", got)
	}
}
