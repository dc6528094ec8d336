package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// parseValue decodes v as JSON when it is valid JSON (numbers, booleans, null, arrays,
// objects, quoted strings) and keeps it as a plain string otherwise.
func parseValue(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		return out
	}
	return v
}

// parseAssignment splits "key=value". The key must be non-empty.
func parseAssignment(s string) (string, any, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid field %q (want key=value)", s)
	}
	return key, parseValue(value), nil
}

// parseAssignments turns key=value arguments into a patch. Later keys win.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, err := parseAssignment(a)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// fieldsValue is a repeatable --field key=value flag.
type fieldsValue struct {
	raw []string
}

var (
	_ pflag.Value      = (*fieldsValue)(nil)
	_ pflag.SliceValue = (*fieldsValue)(nil)
)

func (f *fieldsValue) String() string { return "[" + strings.Join(f.raw, ",") + "]" }

func (f *fieldsValue) Type() string { return "key=value" }

func (f *fieldsValue) Set(s string) error {
	if _, _, err := parseAssignment(s); err != nil {
		return err
	}
	f.raw = append(f.raw, s)
	return nil
}

func (f *fieldsValue) Append(s string) error { return f.Set(s) }

func (f *fieldsValue) Replace(vals []string) error {
	f.raw = nil
	for _, v := range vals {
		if err := f.Set(v); err != nil {
			return err
		}
	}
	return nil
}

func (f *fieldsValue) GetSlice() []string { return append([]string(nil), f.raw...) }

// addFieldsFlag registers --field/-f on fs.
func addFieldsFlag(fs *pflag.FlagSet) {
	fs.VarP(&fieldsValue{}, "field", "f", "field to set as key=value (repeatable; values parse as JSON when valid)")
}

// collectFields merges --field values with positional key=value args.
func collectFields(fs *pflag.FlagSet, args []string) (map[string]any, error) {
	var all []string
	if fl := fs.Lookup("field"); fl != nil {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			all = append(all, sv.GetSlice()...)
		}
	}
	all = append(all, args...)
	return parseAssignments(all)
}

func sortedFieldKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
