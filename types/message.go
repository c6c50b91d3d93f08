package types

// Schema is a structural contract identifier in "name/version" form, e.g.
// "pii_findings/1". Compatibility between a producer's output schema and
// a consumer's accepted input schemas is decided by Compatible.
type Schema string

// ExecutionStatus is the lifecycle status carried in a Message's
// execution context.
type ExecutionStatus string

const (
	StatusPending ExecutionStatus = "pending"
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
)

// Origin identifies where an artifact's definition came from: the parent
// runbook, or a named child runbook expanded into it.
type Origin string

// ParentOrigin is used for artifacts that were not introduced via
// child-runbook flattening.
const ParentOrigin Origin = "parent"

// ChildOrigin formats the "child:<runbook_name>" origin string for a
// flattened child artifact.
func ChildOrigin(runbookName string) Origin {
	return Origin("child:" + runbookName)
}

// ExecutionContext is carried as an extension on every Message and
// describes the outcome of the production step that created it.
type ExecutionContext struct {
	Status          ExecutionStatus `json:"status"`
	Error           string          `json:"error,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Origin          Origin          `json:"origin,omitempty"`
	Alias           string          `json:"alias,omitempty"`

	// Cost is an optional, producer-reported cost delta for this
	// production step (e.g. LLM token spend). The executor feeds it to
	// the configured CostAccountant; a producer that never sets it
	// contributes nothing to the run's budget.
	Cost float64 `json:"cost,omitempty"`
}

// MessageExtensions bundles the extension fields attached to a Message.
// The engine only defines "execution"; producers may not write other
// extension keys.
type MessageExtensions struct {
	Execution ExecutionContext `json:"execution"`
}

// Message is the unit of data flowing between components: the payload a
// producer returns, and what the artifact store persists. Messages are
// treated as immutable by the store — it stores and returns them by
// reference/value, never mutating a message it is handed.
type Message struct {
	Content    any               `json:"content"`
	Schema     Schema            `json:"schema"`
	Extensions MessageExtensions `json:"extensions"`
}

// Clone returns a deep-enough copy of the message for storage round-trip
// semantics: the Content field is preserved by reference (producers must
// not mutate returned content after handing it to the store), but the
// wrapper struct and extensions are copied so callers may freely attach
// per-node execution info without aliasing another node's message.
func (m Message) Clone() Message {
	return Message{
		Content:    m.Content,
		Schema:     m.Schema,
		Extensions: m.Extensions,
	}
}
