package replica

// Outcome distinguishes a successful mutation from an idempotent no-op.
// Rejections and internal errors are reported as ordinary Go errors (see
// errors.go) rather than as Outcome values, so an Event is present to apply
// exactly when the error is nil and the Outcome is OutcomeSuccess.
type Outcome int

const (
	// OutcomeSuccess means the operation produced a new Event the caller
	// should feed to Apply.
	OutcomeSuccess Outcome = iota
	// OutcomeNoChange means the operation recognised the input as
	// already applied (idempotent) and produced no Event.
	OutcomeNoChange
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoChange:
		return "no_change"
	default:
		return "unknown"
	}
}
