package exitcode

// Exit codes for qa-chat commands
const (
	Success    = 0
	Error      = 1
	MissingKey = 2
	NoChanges  = 3
	Cancelled  = 130 // 128 + SIGINT
)

// ExitError is an error that carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e ExitError) Error() string {
	return e.Message
}

// Convenience constructors
func NoKey(msg string) ExitError     { return ExitError{Code: MissingKey, Message: msg} }
func Unchanged(msg string) ExitError { return ExitError{Code: NoChanges, Message: msg} }
func Cancel() ExitError              { return ExitError{Code: Cancelled, Message: "cancelled"} }
