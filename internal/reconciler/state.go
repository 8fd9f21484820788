// Package reconciler drives a bundle's declarative desired state to a live
// database through the fixed five-phase plan: extensions, types, tables and
// migrations, functions, and seeders.
package reconciler

import "github.com/stonescriptdb/gateway/internal/schema"

// Phase is a stage of the reconciliation state machine. Transitions are
// one-way; Blocked is final unless the caller retries with Force set, which
// re-enters Planned. Force only lifts a data-loss block: a plan with
// incompatible changes stays Blocked.
type Phase string

const (
	PhaseLoaded   Phase = "loaded"
	PhaseParsed   Phase = "parsed"
	PhaseDiffed   Phase = "diffed"
	PhaseBlocked  Phase = "blocked"
	PhasePlanned  Phase = "planned"
	PhaseApplying Phase = "applying"
	PhaseApplied  Phase = "applied"
	PhaseFailed   Phase = "failed"
)

// FunctionAction is the reconciliation action a planned function overload
// requires.
type FunctionAction string

const (
	FunctionSkip          FunctionAction = "skip"
	FunctionDeploy        FunctionAction = "deploy"
	FunctionReplace       FunctionAction = "replace"
	FunctionDropOldCreate FunctionAction = "drop_old_create"
	FunctionDrop          FunctionAction = "drop"
)

// PlannedFunction pairs a desired (or, for FunctionDrop, formerly tracked)
// function with the action the reconciler will take for it.
type PlannedFunction struct {
	Signature schema.FunctionSignature
	Action    FunctionAction
	Function  *schema.Function // nil when Action == FunctionDrop
	OldParams []string         // previous parameter types, set only for FunctionDropOldCreate
}

// Plan is the fully classified set of actions a reconcile will perform,
// produced after the differ has run and before anything touches the
// database.
type Plan struct {
	Diff *schema.SchemaDiff

	ExtensionsToInstall []schema.Extension
	TypesToCreate       []schema.TypeDef
	MigrationsToApply   []schema.Migration
	Functions           []PlannedFunction
	Seeders             []*schema.SeederFile

	// Tables is the bundle's full declared table set, independent of
	// which migrations ran this time. After the migrations phase, a
	// checksum is recorded for every one of these in the tables tracking
	// table; the reconciler does not read those checksums back.
	Tables []schema.Table

	// FreshDeploy is true when the target database did not previously
	// exist. Seeders run unconditionally against empty tables; on a
	// reconcile of an existing database they are only validated.
	FreshDeploy bool
}

// Blocked reports whether the plan's diff carries data-loss or
// incompatible changes. force=true lets a data-loss-only plan proceed;
// incompatible changes block regardless.
func (p *Plan) Blocked() bool {
	return p.Diff != nil && !p.Diff.IsSafe()
}

// Result is the outcome of applying a Plan, in the shape the gateway's
// external interface reports back to a caller.
type Result struct {
	Phase Phase

	ExtensionsInstalled []string
	TypesDeployed       []string
	MigrationsApplied   []string
	FunctionsDeployed   []string
	FunctionsUpdated    []string
	FunctionsDropped    []string
	FunctionsSkipped    []string

	SeederRuns        []schema.SeederRunResult
	SeederValidations []schema.SeederValidation

	Diff *schema.SchemaDiff
}
