package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MergeRemote decodes a remote document and merges it over base (normally NewDocument).
//
// Every top-level key present in raw replaces the base value, except that settings are
// shallow-merged (defaults survive for keys the remote omits) and category keys from base
// are never lost. Values of the wrong shape decode to safe defaults instead of failing;
// only a raw value that is not a JSON object is an error.
func MergeRemote(base *Document, raw []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if top == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}

	out := base.Clone()
	for key, val := range top {
		switch key {
		case "categories":
			out.Categories = decodeCategories(val)
		case "activityLog":
			out.ActivityLog = decodeActivityLog(val)
		case "settings":
			for k, v := range decodeObject(val) {
				out.Settings[k] = v
			}
		case "syncMeta":
			out.SyncMeta = DecodeSyncMeta(val)
		default:
			if out.Extra == nil {
				out.Extra = make(map[string]json.RawMessage)
			}
			out.Extra[key] = append(json.RawMessage(nil), val...)
		}
	}

	for name := range base.Categories {
		if _, ok := out.Categories[name]; !ok {
			out.Categories[name] = []Entity{}
		}
	}
	return out, nil
}

// DecodeSyncMeta reads syncMeta leniently. Missing or malformed fields decode as nil.
func DecodeSyncMeta(raw json.RawMessage) SyncMeta {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return SyncMeta{}
	}
	var meta SyncMeta
	meta.ClientID = decodeString(fields["clientId"])
	meta.LastUpdatedAt = decodeTime(fields["lastUpdatedAt"])
	if by := decodeString(fields["lastUpdatedBy"]); by != "" {
		meta.LastUpdatedBy = &by
	}
	return meta
}

// RemoteSyncMeta extracts syncMeta from a whole remote document.
func RemoteSyncMeta(raw []byte) SyncMeta {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return SyncMeta{}
	}
	return DecodeSyncMeta(top["syncMeta"])
}

func decodeCategories(raw json.RawMessage) map[string][]Entity {
	out := make(map[string][]Entity)
	var cats map[string]json.RawMessage
	if err := json.Unmarshal(raw, &cats); err != nil {
		return out
	}
	for name, val := range cats {
		out[name] = decodeEntities(val)
	}
	return out
}

func decodeEntities(raw json.RawMessage) []Entity {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []Entity{}
	}
	out := make([]Entity, 0, len(items))
	for _, item := range items {
		obj := decodeObject(item)
		if obj == nil {
			continue
		}
		out = append(out, Entity(obj))
	}
	return out
}

func decodeActivityLog(raw json.RawMessage) []ActivityEntry {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []ActivityEntry{}
	}
	out := make([]ActivityEntry, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		entry := ActivityEntry{
			ID:   decodeString(fields["id"]),
			Text: decodeString(fields["text"]),
			Type: ActivityType(decodeString(fields["type"])),
		}
		if at := decodeTime(fields["at"]); at != nil {
			entry.At = *at
		}
		if s := decodeString(fields["entity"]); s != "" {
			entry.Entity = &s
		}
		if s := decodeString(fields["entityId"]); s != "" {
			entry.EntityID = &s
		}
		out = append(out, entry)
	}
	return out
}

// decodeObject returns nil when raw is not a JSON object.
func decodeObject(raw json.RawMessage) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeTime accepts an RFC 3339 string or a number of milliseconds since the epoch.
func decodeTime(raw json.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		t := time.UnixMilli(int64(ms)).UTC()
		return &t
	}
	return nil
}
