package reconciler

import (
	"sort"

	"github.com/stonescriptdb/gateway/internal/schema"
)

// planExtensions returns the extensions declared by the bundle that are not
// yet installed.
func planExtensions(desired []schema.Extension, installed []string) []schema.Extension {
	have := make(map[string]bool, len(installed))
	for _, name := range installed {
		have[name] = true
	}
	var out []schema.Extension
	for _, e := range desired {
		if !have[e.Name] {
			out = append(out, e)
		}
	}
	return out
}

// planTypes returns the types declared by the bundle that have no tracked
// row at all. A type whose checksum changed is not returned here:
// BuildPlan reports a changed type as an Incompatible change in the plan's
// diff, and an incompatible plan never reaches the apply phase, with or
// without force, so the existing type is left untouched.
func planTypes(desired []schema.TypeDef, tracked []schema.ObservedType) []schema.TypeDef {
	seen := make(map[string]bool, len(tracked))
	for _, t := range tracked {
		seen[t.Name] = true
	}
	var out []schema.TypeDef
	for _, t := range desired {
		if !seen[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// planMigrations returns the migrations not yet recorded in the tracking
// table, ordered by table dependency and, within that, filename.
func planMigrations(desired []schema.Migration, applied []schema.ObservedMigration) ([]schema.Migration, error) {
	appliedNames := make(map[string]bool, len(applied))
	for _, m := range applied {
		appliedNames[m.Filename] = true
	}

	var pending []schema.Migration
	for _, m := range desired {
		if !appliedNames[m.Filename] {
			pending = append(pending, m)
		}
	}

	return schema.OrderMigrations(pending)
}

// planFunctions classifies every desired function overload against the
// tracking table and appends drop actions for tracked overloads no longer
// present in the bundle.
func planFunctions(desired []schema.Function, tracked []schema.ObservedFunction) []PlannedFunction {
	trackedBySig := make(map[string]schema.ObservedFunction, len(tracked))
	for _, f := range tracked {
		trackedBySig[f.Signature.String()] = f
	}

	seen := make(map[string]bool, len(desired))
	var plan []PlannedFunction

	for i := range desired {
		fn := desired[i]
		key := fn.Signature.String()
		seen[key] = true

		observed, ok := trackedBySig[key]
		switch {
		case !ok:
			plan = append(plan, PlannedFunction{Signature: fn.Signature, Action: FunctionDeploy, Function: &fn})
		case observed.Checksum != fn.Checksum:
			plan = append(plan, PlannedFunction{Signature: fn.Signature, Action: FunctionReplace, Function: &fn})
		default:
			plan = append(plan, PlannedFunction{Signature: fn.Signature, Action: FunctionSkip, Function: &fn})
		}
	}

	// Orphans: tracked overloads whose name still exists in the bundle
	// under a different parameter list are a DropOldCreate pairing rather
	// than a bare drop, since the caller is renaming a signature, not
	// removing the function entirely. A tracked overload whose name is
	// entirely absent from the bundle is a bare drop.
	desiredNames := make(map[string]bool, len(desired))
	for _, fn := range desired {
		desiredNames[fn.Signature.Name] = true
	}

	var orphanKeys []string
	for key := range trackedBySig {
		if !seen[key] {
			orphanKeys = append(orphanKeys, key)
		}
	}
	sort.Strings(orphanKeys)

	for _, key := range orphanKeys {
		observed := trackedBySig[key]
		if desiredNames[observed.Signature.Name] {
			plan = append(plan, PlannedFunction{
				Signature: observed.Signature,
				Action:    FunctionDropOldCreate,
				OldParams: observed.Signature.ParamTypes,
			})
		} else {
			plan = append(plan, PlannedFunction{Signature: observed.Signature, Action: FunctionDrop})
		}
	}

	return plan
}
