package staging

import (
	"fmt"
	"sort"

	"github.com/cuemby/booster/pkg/types"
)

// Validate checks the staged operations against the catalog. Issues are
// advisory and never change the ledger.
//
//   - apply: warning per dependency that is neither applied nor staged to apply
//   - apply: error per conflicting booster that is applied and not staged to revert
//   - revert: error if the booster is not reversible
func (l *Ledger) Validate() []types.ValidationIssue {
	staged := l.Snapshot()

	ids := make([]string, 0, len(staged))
	for id := range staged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var issues []types.ValidationIssue
	for _, id := range ids {
		item, ok := l.catalog.Get(id)
		if !ok {
			issues = append(issues, types.ValidationIssue{
				BoosterID: id,
				Severity:  types.SeverityError,
				Message:   "booster is no longer in the catalog",
			})
			continue
		}

		switch staged[id] {
		case types.OperationApply:
			for _, dep := range item.Dependencies {
				applied, known := l.catalog.IsApplied(dep)
				if (known && applied) || staged[dep] == types.OperationApply {
					continue
				}
				issues = append(issues, types.ValidationIssue{
					BoosterID: id,
					Severity:  types.SeverityWarning,
					Message:   fmt.Sprintf("dependency %s is not applied", dep),
				})
			}
			for _, conflict := range item.Conflicts {
				applied, known := l.catalog.IsApplied(conflict)
				if !known || !applied || staged[conflict] == types.OperationRevert {
					continue
				}
				issues = append(issues, types.ValidationIssue{
					BoosterID: id,
					Severity:  types.SeverityError,
					Message:   fmt.Sprintf("conflicts with applied booster %s", conflict),
				})
			}
		case types.OperationRevert:
			if !item.Reversible {
				issues = append(issues, types.ValidationIssue{
					BoosterID: id,
					Severity:  types.SeverityError,
					Message:   "booster cannot be reverted",
				})
			}
		}
	}
	return issues
}

// HasErrors reports whether any issue has error severity
func HasErrors(issues []types.ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == types.SeverityError {
			return true
		}
	}
	return false
}
