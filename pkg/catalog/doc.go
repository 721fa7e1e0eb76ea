// Package catalog keeps the loaded snapshot of booster items. It is the only
// owner of IsApplied: loads replace a category wholesale and MarkApplied is the
// single path that changes applied state after an execution completes.
package catalog
