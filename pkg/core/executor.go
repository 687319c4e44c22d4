package core

import "context"

// UnitRef identifies a unit created on the production surface. The
// orchestrator treats it as opaque and hands it back unchanged.
type UnitRef string

// Executor is the capability port the orchestration engine drives. It is
// implemented by the UI-automation collaborator (or a simulated stand-in);
// the engine only sees typed success and failure.
//
// Any method may return a plain error (transient, retried up to the budget)
// or a NoRetry-wrapped error (fatal, surfaces immediately).
type Executor interface {
	// Create starts generation of a new unit from the spec.
	Create(ctx context.Context, spec TrackSpec) (UnitRef, error)

	// PollReady reports whether the unit has finished generating.
	PollReady(ctx context.Context, ref UnitRef) (bool, error)

	// ApplyTreatment masters the unit with the given profile.
	ApplyTreatment(ctx context.Context, ref UnitRef, profile Profile) error

	// Export renders the unit and returns the artifact path.
	Export(ctx context.Context, ref UnitRef, kind ExportKind) (string, error)
}
