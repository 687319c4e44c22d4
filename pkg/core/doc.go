// Package core provides the fundamental types and interfaces for trackpilot.
//
// This package contains:
//   - TrackSpec and mastering profile domain types
//   - TrackJob and the forward-only phase model
//   - RunConfig with its reproducibility identity
//   - The Executor port consumed by the orchestration engine
//   - Event types for run monitoring
//   - Error types controlling retry behavior
//
// Most users should import the root package github.com/trackpilot/trackpilot
// instead of this package directly.
package core
