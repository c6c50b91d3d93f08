// Package types defines the core domain types shared by the planner,
// executor, and artifact store.
package types

// Version is the canonical engine version. The version command and the
// app's --version output reference this constant so the two never drift.
const Version = "0.1.0"
