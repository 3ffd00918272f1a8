package tasktree

// InvariantError marks a programmer error: a node whose parent id does not
// resolve, a depth that disagrees with the path to the root, or an approval
// while a dependency is still unapproved. Illegal state transitions are
// reported with ErrIllegalTransition instead. RunBlueprint refuses to start
// on one from ValidateInvariants; during a run the scheduler reports one as
// an error event for the task and does not retry it, and the run goes on.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "tasktree: invariant violated: " + e.Message
}

// NewInvariantError constructs an InvariantError with the given message.
func NewInvariantError(message string) error {
	return &InvariantError{Message: message}
}

// IsInvariantError reports whether err is an InvariantError.
func IsInvariantError(err error) bool {
	_, ok := err.(*InvariantError)
	return ok
}
