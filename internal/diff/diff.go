// Package diff compares the previous and current snapshots and reports which
// tracked sections changed.
//
// A nil previous snapshot always yields the single InitialScan event. A stored
// snapshot whose value shapes do not match the current mode is treated the same
// way: scalar digests and identifier lists are never compared with each other.
package diff

import (
	"site_watcher/internal/models"
)

// Snapshots dispatches to Scalar or Set according to mode.
func Snapshots(mode models.Mode, prev, curr *models.Snapshot) []models.ChangeEvent {
	if mode == models.ModeItems {
		return Set(prev, curr)
	}
	return Scalar(prev, curr)
}

// Scalar reports every label of curr whose digest differs from prev, in curr's
// label order. A section that appeared or disappeared counts as changed.
func Scalar(prev, curr *models.Snapshot) []models.ChangeEvent {
	if prev == nil {
		return []models.ChangeEvent{models.InitialScan}
	}
	if s := prev.Shape(); s == models.ShapeSet || s == models.ShapeMixed {
		return []models.ChangeEvent{models.InitialScan}
	}

	changes := []models.ChangeEvent{}
	for _, label := range curr.Labels() {
		now, _ := curr.Get(label)
		before, _ := prev.Get(label)
		if !now.Equal(before) {
			changes = append(changes, models.ChangeEvent{Kind: models.EventSectionChanged, Label: label})
		}
	}
	return changes
}

// Set reports labels that gained identifiers since prev. Removed identifiers
// never produce an event: the site only ever adds items.
func Set(prev, curr *models.Snapshot) []models.ChangeEvent {
	if prev == nil {
		return []models.ChangeEvent{models.InitialScan}
	}
	if s := prev.Shape(); s == models.ShapeScalar || s == models.ShapeMixed {
		return []models.ChangeEvent{models.InitialScan}
	}

	changes := []models.ChangeEvent{}
	for _, label := range curr.Labels() {
		now, _ := curr.Get(label)
		before, _ := prev.Get(label)
		if n := countNew(before.Items, now.Items); n > 0 {
			changes = append(changes, models.ChangeEvent{Kind: models.EventNewItems, Label: label, NewCount: n})
		}
	}
	return changes
}

// Talk reports one event carrying the number of comment ids not present before.
func Talk(prev, curr *models.TalkSnapshot) []models.ChangeEvent {
	if prev == nil {
		return []models.ChangeEvent{models.InitialScan}
	}
	if n := countNew(prev.Comments, curr.Comments); n > 0 {
		return []models.ChangeEvent{{Kind: models.EventNewTalk, NewCount: n}}
	}
	return []models.ChangeEvent{}
}

// IsInitial reports whether events is the first-scan sentinel. Call sites use it
// to skip notifications on the very first cycle.
func IsInitial(events []models.ChangeEvent) bool {
	return len(events) == 1 && events[0].Kind == models.EventInitialScan
}

func countNew(before, now []string) int {
	known := make(map[string]struct{}, len(before))
	for _, id := range before {
		known[id] = struct{}{}
	}
	fresh := make(map[string]struct{})
	for _, id := range now {
		if _, ok := known[id]; !ok {
			fresh[id] = struct{}{}
		}
	}
	return len(fresh)
}
