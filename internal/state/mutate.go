package state

import (
	"fmt"

	"github.com/marcus/dealbook/internal/models"
)

// Add creates an entity in category from payload and returns a copy of it.
// The core assigns id, createdAt and updatedAt; payload values for id and createdAt are ignored.
func (s *Store) Add(category string, payload map[string]any) models.Entity {
	s.mu.Lock()
	at := s.stamp()
	ts := models.FormatTime(at)

	e := models.Entity{}
	for k, v := range payload {
		e[k] = v
	}
	e[models.FieldID] = s.newID(idPrefix(category))
	e[models.FieldCreatedAt] = ts
	e[models.FieldUpdatedAt] = ts
	e = e.Clone()

	list := s.doc.Categories[category]
	next := make([]models.Entity, 0, len(list)+1)
	next = append(next, e)
	next = append(next, list...)
	s.doc.Categories[category] = next

	id := e.ID()
	s.logActivity(fmt.Sprintf("Added %s %q", models.Singular(category), e.DisplayName()),
		models.ActivityAdd, &category, &id, at)
	s.version++
	out := e.Clone()
	s.mu.Unlock()

	s.changed(category)
	return out
}

// Update shallow-merges patch into the entity with id and stamps updatedAt. It reports
// false when no such entity exists; the category is then left as it was and no activity
// is logged.
func (s *Store) Update(category, id string, patch map[string]any) (models.Entity, bool) {
	s.mu.Lock()
	list := s.doc.Categories[category]
	idx := -1
	for i, e := range list {
		if e.ID() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.version++
		s.mu.Unlock()
		s.changed(category)
		return nil, false
	}

	at := s.stamp()
	merged := list[idx].Clone()
	for k, v := range patch {
		if k == models.FieldID || k == models.FieldCreatedAt {
			continue
		}
		merged[k] = models.CloneValue(v)
	}
	merged[models.FieldUpdatedAt] = models.FormatTime(at)

	next := make([]models.Entity, len(list))
	copy(next, list)
	next[idx] = merged
	s.doc.Categories[category] = next

	s.logActivity(fmt.Sprintf("Updated %s %q", models.Singular(category), merged.DisplayName()),
		models.ActivityUpdate, &category, &id, at)
	s.version++
	out := merged.Clone()
	s.mu.Unlock()

	s.changed(category)
	return out, true
}

// Delete removes the entity with id. It reports whether one was removed; activity is
// logged only in that case.
func (s *Store) Delete(category, id string) bool {
	s.mu.Lock()
	list := s.doc.Categories[category]
	var removed models.Entity
	next := make([]models.Entity, 0, len(list))
	for _, e := range list {
		if removed == nil && e.ID() == id {
			removed = e
			continue
		}
		next = append(next, e)
	}
	if removed != nil {
		s.doc.Categories[category] = next
		at := s.stamp()
		s.logActivity(fmt.Sprintf("Deleted %s %q", models.Singular(category), removed.DisplayName()),
			models.ActivityDelete, &category, &id, at)
	}
	s.version++
	s.mu.Unlock()

	s.changed(category)
	return removed != nil
}

// UpdateSettings shallow-merges patch into settings.
func (s *Store) UpdateSettings(patch map[string]any) {
	s.mu.Lock()
	at := s.stamp()
	if s.doc.Settings == nil {
		s.doc.Settings = models.DefaultSettings()
	}
	for k, v := range patch {
		s.doc.Settings[k] = models.CloneValue(v)
	}
	s.logActivity("Updated settings", models.ActivityUpdate, nil, nil, at)
	s.version++
	s.mu.Unlock()

	s.changed("settings")
}
