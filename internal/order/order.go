// Package order computes display sequences and reindex plans for sibling
// task lists. Incomplete siblings carry a dense 1..N manual rank; completed
// siblings are excluded from the rank domain and shown most-recently-completed
// first. All functions are pure.
package order

import (
	"fmt"
	"sort"

	"sprintdesk/internal/domain"
)

// Field selects which rank column a sibling scope uses: SortOrder for
// top-level tasks (and the Today scope), SubOrder for subtasks of one parent.
type Field int

const (
	ByOrder Field = iota
	BySubOrder
)

func (f Field) of(t domain.Task) int {
	if f == BySubOrder {
		return t.SubOrder
	}
	return t.SortOrder
}

// Change is one entry of a reindex plan: the task's rank becomes NewOrder.
type Change struct {
	ID       string `json:"id"`
	NewOrder int    `json:"order"`
}

// SortSiblings produces the display sequence for one sibling scope:
// incomplete tasks ascending by rank, then completed tasks descending by
// completion time. Completed tasks without a timestamp sort last. The input
// is not mutated.
func SortSiblings(tasks []domain.Task, field Field) []domain.Task {
	incomplete := make([]domain.Task, 0, len(tasks))
	completed := make([]domain.Task, 0)
	for _, t := range tasks {
		if t.Completed {
			completed = append(completed, t)
		} else {
			incomplete = append(incomplete, t)
		}
	}
	sort.SliceStable(incomplete, func(i, j int) bool {
		return field.of(incomplete[i]) < field.of(incomplete[j])
	})
	sort.SliceStable(completed, func(i, j int) bool {
		a, b := completed[i].CompletedAt, completed[j].CompletedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return append(incomplete, completed...)
}

// Incomplete filters a sequence down to its incomplete members, preserving
// order. Drag targets are always scoped to this filtered view.
func Incomplete(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

// Reorder removes the element at from, reinserts it at to, and assigns each
// element a 1-based rank equal to its position. The returned plan holds only
// the entries whose rank actually changed; a no-op move yields an empty plan
// and a sequence identical to the input.
func Reorder(seq []domain.Task, from, to int, field Field) ([]domain.Task, []Change, error) {
	n := len(seq)
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil, nil, fmt.Errorf("reorder index out of range: from=%d to=%d len=%d", from, to, n)
	}
	out := make([]domain.Task, 0, n)
	out = append(out, seq...)
	if from != to {
		moved := out[from]
		out = append(out[:from], out[from+1:]...)
		rest := make([]domain.Task, 0, n)
		rest = append(rest, out[:to]...)
		rest = append(rest, moved)
		rest = append(rest, out[to:]...)
		out = rest
	}
	var plan []Change
	for i := range out {
		rank := i + 1
		if field.of(out[i]) != rank {
			plan = append(plan, Change{ID: out[i].ID, NewOrder: rank})
		}
		if field == BySubOrder {
			out[i].SubOrder = rank
		} else {
			out[i].SortOrder = rank
		}
	}
	return out, plan, nil
}

// PermuteSubset reorders the members of one sibling scope that appear in
// ordered so they follow ordered's relative order, without moving anyone
// else: the members trade the rank slots they already hold, so the scope
// keeps the same dense rank set. Entries of ordered outside the scope are
// ignored. scope must be the scope's incomplete members.
func PermuteSubset(scope, ordered []domain.Task, field Field) []Change {
	current := make(map[string]int, len(scope))
	for _, t := range scope {
		current[t.ID] = field.of(t)
	}
	var ids []string
	var slots []int
	seen := make(map[string]bool, len(ordered))
	for _, t := range ordered {
		rank, ok := current[t.ID]
		if !ok || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		ids = append(ids, t.ID)
		slots = append(slots, rank)
	}
	sort.Ints(slots)
	var plan []Change
	for i, id := range ids {
		if current[id] != slots[i] {
			plan = append(plan, Change{ID: id, NewOrder: slots[i]})
		}
	}
	return plan
}

// Resequence applies an explicit rank plan to a sequence: each member's
// effective rank is the plan's value when present, its current 1-based
// position otherwise. Returns the members sorted by effective rank. Plan
// entries for tasks outside the sequence are ignored.
func Resequence(seq []domain.Task, plan []Change) []domain.Task {
	rank := make(map[string]int, len(seq))
	for i, t := range seq {
		rank[t.ID] = i + 1
	}
	for _, c := range plan {
		if _, ok := rank[c.ID]; ok {
			rank[c.ID] = c.NewOrder
		}
	}
	out := make([]domain.Task, len(seq))
	copy(out, seq)
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i].ID] < rank[out[j].ID] })
	return out
}

// Renumber assigns a dense 1..N rank following the sequence's current order
// and returns the minimal plan. Used after a member leaves the rank domain
// (completion, deletion) to close the gap.
func Renumber(seq []domain.Task, field Field) ([]domain.Task, []Change) {
	if len(seq) == 0 {
		return nil, nil
	}
	out, plan, _ := Reorder(seq, 0, 0, field)
	return out, plan
}

// Position is the caller-chosen insertion policy for new tasks.
type Position string

const (
	Top    Position = "top"
	Bottom Position = "bottom"
)

// InsertPlan computes the rank for a new task and the shifts existing
// incomplete siblings need. Top pushes every sibling down one; Bottom appends
// after the last incomplete sibling. An empty scope always yields rank 1.
func InsertPlan(incomplete []domain.Task, pos Position, field Field) (newRank int, shifts []Change) {
	if pos == Top {
		for _, t := range incomplete {
			shifts = append(shifts, Change{ID: t.ID, NewOrder: field.of(t) + 1})
		}
		return 1, shifts
	}
	return len(incomplete) + 1, nil
}
