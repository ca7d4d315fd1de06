// Package validation reports conflicts between stored plans and conversations.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/models"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictOverlappingPlans    ConflictType = "overlapping_plans"
	ConflictInvalidTime         ConflictType = "invalid_time"
	ConflictDuplicatePlanTitle  ConflictType = "duplicate_plan_title"
	ConflictOrphanConversation  ConflictType = "orphan_conversation"
	ConflictMismatchedPlanTitle ConflictType = "mismatched_plan_title"
)

// Conflict is one detected problem.
type Conflict struct {
	Type        ConflictType
	Description string
	Day         string
	PlanIDs     []int
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}
	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, c := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", c.Description)
	}
	return b.String()
}

// Validator validates plans and conversations for conflicts
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// span is a closed minute range within one weekday.
type span struct {
	plan       models.Plan
	start, end int
}

// spans lays a plan's window onto the week. An overnight window runs to
// midnight on its day and continues from midnight on the next.
func spans(p models.Plan) (map[time.Weekday][]span, bool) {
	start, err1 := clock.ParseMinutes(p.StartTime)
	end, err2 := clock.ParseMinutes(p.EndTime)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	days := []time.Weekday{p.Day}
	if p.IsDaily {
		days = []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
	}
	out := map[time.Weekday][]span{}
	for _, d := range days {
		if end >= start {
			out[d] = append(out[d], span{p, start, end})
			continue
		}
		out[d] = append(out[d], span{p, start, 24*60 - 1})
		next := (d + 1) % 7
		out[next] = append(out[next], span{p, 0, end})
	}
	return out, true
}

// ValidatePlans checks for invalid times, duplicate titles and plans whose
// windows overlap on the same day. Completed plans are skipped for overlap.
func (v *Validator) ValidatePlans(plans []models.Plan) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}

	titles := map[string][]int{}
	for _, p := range plans {
		key := strings.ToLower(strings.TrimSpace(p.Title))
		if key != "" {
			titles[key] = append(titles[key], p.ID)
		}
	}
	for _, key := range sortedKeys(titles) {
		if ids := titles[key]; len(ids) > 1 {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictDuplicatePlanTitle,
				Description: fmt.Sprintf("Duplicate plan title: %q (IDs: %v)", key, ids),
				PlanIDs:     ids,
			})
		}
	}

	byDay := map[time.Weekday][]span{}
	for _, p := range plans {
		s, ok := spans(p)
		if !ok {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictInvalidTime,
				Description: fmt.Sprintf("Plan %q (ID %d) has an invalid window: %s", p.Title, p.ID, p.Window()),
				PlanIDs:     []int{p.ID},
			})
			continue
		}
		if p.IsCompleted {
			continue
		}
		for d, list := range s {
			byDay[d] = append(byDay[d], list...)
		}
	}

	seen := map[[2]int]bool{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		list := byDay[d]
		sort.Slice(list, func(i, j int) bool { return list[i].start < list[j].start })
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list) && list[j].start <= list[i].end; j++ {
				a, b := list[i].plan, list[j].plan
				if a.ID == b.ID {
					continue
				}
				pair := [2]int{min(a.ID, b.ID), max(a.ID, b.ID)}
				if seen[pair] {
					continue
				}
				seen[pair] = true
				result.Conflicts = append(result.Conflicts, Conflict{
					Type: ConflictOverlappingPlans,
					Description: fmt.Sprintf("Plans %q (%s) and %q (%s) overlap on %s",
						a.Title, a.Window(), b.Title, b.Window(), d),
					Day:     d.String(),
					PlanIDs: []int{a.ID, b.ID},
				})
			}
		}
	}
	return result
}

// ValidateConversations checks that every plan-linked conversation still has
// its plan and carries its title.
func (v *Validator) ValidateConversations(plans []models.Plan, convs []models.Conversation) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}
	byID := make(map[int64]models.Plan, len(plans))
	for _, p := range plans {
		byID[int64(p.ID)] = p
	}
	for _, c := range convs {
		if !c.HasPlan() {
			continue
		}
		p, ok := byID[c.PlanID]
		if !ok {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictOrphanConversation,
				Description: fmt.Sprintf("Conversation %d links to missing plan %d", c.ID, c.PlanID),
			})
			continue
		}
		if p.Title != c.Title {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictMismatchedPlanTitle,
				Description: fmt.Sprintf("Conversation %d is titled %q but its plan is %q", c.ID, c.Title, p.Title),
				PlanIDs:     []int{p.ID},
			})
		}
	}
	return result
}

// Merge concatenates results.
func Merge(results ...ValidationResult) ValidationResult {
	out := ValidationResult{Conflicts: []Conflict{}}
	for _, r := range results {
		out.Conflicts = append(out.Conflicts, r.Conflicts...)
	}
	return out
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
