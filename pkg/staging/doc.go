/*
Package staging implements the staging ledger: the set of apply/revert
operations the user intends to run, keyed by booster id.

An entry exists only while it would change the booster. Staging apply on an
applied booster, or revert on a reverted one, removes any existing entry:

	isApplied=false  Stage(apply)   → {a: apply}
	                 Stage(revert)  → {}            (round trip is a no-op)

Counts, HasChanges and EffectiveApplied are computed from the ledger on read
and never cached separately. Validate reports dependency warnings, conflict
errors and irreversible reverts without blocking staging.
*/
package staging
