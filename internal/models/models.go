package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Category names used by the CRM views. Unknown categories are created on first add.
const (
	CategoryDeals      = "deals"
	CategoryProperties = "properties"
	CategoryContacts   = "contacts"
	CategoryTasks      = "tasks"
	CategoryProjects   = "projects"
	CategoryInvestors  = "investors"
	CategoryEntities   = "entities" // LLCs and other legal entities
	CategoryUploads    = "uploads"
)

// Wildcard is the change tag subscribers receive when the whole document changed.
const Wildcard = "*"

// DefaultActivityLimit caps the activity log.
const DefaultActivityLimit = 50

// TimeLayout is the wire format for every timestamp in the document.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ActivityType tags an activity entry
type ActivityType string

const (
	ActivityAdd    ActivityType = "add"
	ActivityUpdate ActivityType = "update"
	ActivityDelete ActivityType = "delete"
)

// Entity is a record inside a category. The core owns id, createdAt and updatedAt;
// every other field is caller-defined.
type Entity map[string]any

// Field names the core assigns on entities
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// displayFields are consulted in order when naming an entity in activity text
var displayFields = []string{"name", "title", "fullName", "label", "address"}

// ID returns the entity id, or "" when missing or not a string.
func (e Entity) ID() string {
	id, _ := e[FieldID].(string)
	return id
}

// DisplayName returns a human label for the entity.
func (e Entity) DisplayName() string {
	for _, f := range displayFields {
		if s, ok := e[f].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return e.ID()
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	return Entity(cloneMap(e))
}

// ActivityEntry is one line of the audit log. Entries are never modified after creation.
type ActivityEntry struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	At       time.Time    `json:"at"`
	Type     ActivityType `json:"type"`
	Entity   *string      `json:"entity"`
	EntityID *string      `json:"entityId"`
}

// SyncMeta records who last wrote the document to the remote store, and when.
type SyncMeta struct {
	ClientID      string     `json:"clientId"`
	LastUpdatedAt *time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy *string    `json:"lastUpdatedBy"`
}

// Document is the root object synchronized end-to-end.
type Document struct {
	Categories  map[string][]Entity `json:"categories"`
	ActivityLog []ActivityEntry     `json:"activityLog"`
	Settings    map[string]any      `json:"settings"`
	SyncMeta    SyncMeta            `json:"syncMeta"`

	// Extra holds top-level keys written by other clients that this version does not know.
	// They survive a round trip so a push never drops them.
	Extra map[string]json.RawMessage `json:"-"`
}

// DefaultCategories returns the categories every document carries.
func DefaultCategories() []string {
	return []string{
		CategoryDeals,
		CategoryProperties,
		CategoryContacts,
		CategoryTasks,
		CategoryProjects,
		CategoryInvestors,
		CategoryEntities,
		CategoryUploads,
	}
}

// DefaultSettings returns a fresh copy of the default settings.
func DefaultSettings() map[string]any {
	return map[string]any{
		"companyName":     "",
		"currency":        "USD",
		"fiscalYearStart": "01",
		"theme":           "light",
	}
}

// NewDocument builds the pre-hydration document: empty categories, default settings.
func NewDocument(clientID string) *Document {
	cats := make(map[string][]Entity)
	for _, c := range DefaultCategories() {
		cats[c] = []Entity{}
	}
	return &Document{
		Categories:  cats,
		ActivityLog: []ActivityEntry{},
		Settings:    DefaultSettings(),
		SyncMeta:    SyncMeta{ClientID: clientID},
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Categories:  make(map[string][]Entity, len(d.Categories)),
		ActivityLog: make([]ActivityEntry, len(d.ActivityLog)),
		Settings:    cloneMap(d.Settings),
		SyncMeta:    d.SyncMeta.clone(),
	}
	for name, list := range d.Categories {
		cp := make([]Entity, len(list))
		for i, e := range list {
			cp[i] = e.Clone()
		}
		out.Categories[name] = cp
	}
	for i, a := range d.ActivityLog {
		out.ActivityLog[i] = a.clone()
	}
	if d.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// CategoryNames lists the default categories present in the document first, then any
// others alphabetically.
func (d *Document) CategoryNames() []string {
	out := make([]string, 0, len(d.Categories))
	seen := make(map[string]bool, len(d.Categories))
	for _, c := range DefaultCategories() {
		if _, ok := d.Categories[c]; ok {
			out = append(out, c)
			seen[c] = true
		}
	}
	var extra []string
	for c := range d.Categories {
		if !seen[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// MarshalJSON writes the known fields and any preserved unknown top-level keys.
func (d *Document) MarshalJSON() ([]byte, error) {
	type plain Document
	known, err := json.Marshal((*plain)(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(d.Extra)+4)
	for k, v := range d.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Singular returns the singular noun for a category, used in ids and activity text.
func Singular(category string) string {
	switch category {
	case CategoryProperties:
		return "property"
	case CategoryEntities:
		return "entity"
	}
	if s, ok := strings.CutSuffix(category, "s"); ok && s != "" {
		return s
	}
	return category
}

// FormatTime renders t in the document's timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func (m SyncMeta) clone() SyncMeta {
	out := SyncMeta{ClientID: m.ClientID}
	if m.LastUpdatedAt != nil {
		t := *m.LastUpdatedAt
		out.LastUpdatedAt = &t
	}
	if m.LastUpdatedBy != nil {
		s := *m.LastUpdatedBy
		out.LastUpdatedBy = &s
	}
	return out
}

func (a ActivityEntry) clone() ActivityEntry {
	out := a
	if a.Entity != nil {
		s := *a.Entity
		out.Entity = &s
	}
	if a.EntityID != nil {
		s := *a.EntityID
		out.EntityID = &s
	}
	return out
}

// CloneValue deep-copies a JSON-shaped value (maps, slices, scalars).
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Entity:
		return Entity(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
