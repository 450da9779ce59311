package cli

import (
	"sort"

	"github.com/fatih/color"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"
)

func printAssignment(a workflow.Assignment) {
	for _, w := range a.Warnings {
		color.Yellow("  ⚠ %s", w)
	}
	switch a.Status {
	case workflow.AssignmentAdded:
		color.Green("  ✓ Added to %s", a.Group)
	case workflow.AssignmentAlreadyMember:
		color.New().Printf("  - Already in %s\n", a.Group)
	default:
		color.Red("  ✗ %s: %v", a.Group, a.Err)
	}
}

func printStep(s *workflow.Step) {
	if s == nil {
		return
	}
	switch s.Status {
	case workflow.StepDone:
		color.Green("✓ %s", s.Name)
	case workflow.StepSkipped:
		color.Yellow("⚠ %s skipped: %s", s.Name, s.Detail)
	default:
		reason := s.Detail
		if s.Err != nil {
			reason = s.Err.Error()
		}
		color.Red("✗ %s failed: %s", s.Name, reason)
	}
}

func printResources(kind string, resources map[string]string) {
	if len(resources) == 0 {
		color.Yellow("⚠ No %s found", kind)
		return
	}
	color.Cyan("%-32s %s", "Name", "UUID")
	color.Cyan("────────────────────────────────────────────────────────────────────")
	for _, name := range sortedKeys(resources) {
		color.New().Printf("%-32s %s\n", name, resources[name])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
