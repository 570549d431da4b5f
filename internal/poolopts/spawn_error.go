package poolopts

import "fmt"

// SpawnErrorKind enumerates the taxonomy of spawn failures (spec §4.2, §7).
type SpawnErrorKind int

const (
	InternalError SpawnErrorKind = iota
	PreloaderStartupProtocolError
	PreloaderStartupTimeout
	AppStartupProtocolError
	AppStartupTimeout
	AppStartupExplainableError
)

func (k SpawnErrorKind) String() string {
	switch k {
	case PreloaderStartupProtocolError:
		return "PreloaderStartupProtocolError"
	case PreloaderStartupTimeout:
		return "PreloaderStartupTimeout"
	case AppStartupProtocolError:
		return "AppStartupProtocolError"
	case AppStartupTimeout:
		return "AppStartupTimeout"
	case AppStartupExplainableError:
		return "AppStartupExplainableError"
	default:
		return "InternalError"
	}
}

// SpawnError carries the captured stderr of the failing worker so the
// caller can render a diagnostic page for operators (spec §7).
type SpawnError struct {
	Kind          SpawnErrorKind
	Message       string
	StderrOutput  string
	Summary       string
	ErrorID       string
	HTML          bool
}

func (e *SpawnError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

// NewSpawnError is a convenience constructor used by spawner and group code.
func NewSpawnError(kind SpawnErrorKind, message string) *SpawnError {
	return &SpawnError{Kind: kind, Message: message}
}
