package errors

import (
	stderrors "errors"
	"os/exec"
	"strings"
	"syscall"
)

// Kind buckets a run failure for user messaging and retry policy.
type Kind int

const (
	// KindGeneric covers every failure without special handling.
	KindGeneric Kind = iota
	// KindProvisioning marks failures caused by tool-server startup:
	// missing launcher, startup timeout, refused or broken connections.
	KindProvisioning
	// KindAuth marks credential rejections from the model provider.
	KindAuth
)

// Provisioning tags err as a tool-provisioning failure. The tag survives
// wrapping with Wrapf and joining with errors.Join.
func Provisioning(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindProvisioning, err: err}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Classify walks the full cause tree of err, including multi-cause joins,
// and returns the dominant failure kind. Provisioning outranks auth,
// which outranks generic, because provisioning failures are retryable.
func Classify(err error) Kind {
	if containsKind(err, isProvisioning) {
		return KindProvisioning
	}
	if containsKind(err, isAuth) {
		return KindAuth
	}
	return KindGeneric
}

// containsKind reports whether any node in err's cause tree satisfies
// pred. Both single-cause (Unwrap() error) and multi-cause
// (Unwrap() []error) chains are traversed.
func containsKind(err error, pred func(error) bool) bool {
	if err == nil {
		return false
	}
	if pred(err) {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return containsKind(x.Unwrap(), pred)
	case interface{ Unwrap() []error }:
		for _, sub := range x.Unwrap() {
			if containsKind(sub, pred) {
				return true
			}
		}
	}
	return false
}

func isProvisioning(err error) bool {
	if ke, ok := err.(*kindError); ok && ke.kind == KindProvisioning {
		return true
	}
	var execErr *exec.Error
	if stderrors.As(err, &execErr) {
		// Launcher binary (npx) not found on PATH.
		return true
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"broken pipe",
		"executable file not found",
		"deadline exceeded",
		"timed out waiting for tool server",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isAuth(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"401",
		"unauthorized",
		"authentication",
		"invalid api key",
		"invalid x-api-key",
		"permission denied by provider",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Diagnostic renders err with every sub-cause of a joined error on its
// own line, so the ledger keeps the full failure detail even when the
// user-facing message summarizes only the dominant cause.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	collectCauses(err, &lines)
	if len(lines) <= 1 {
		return err.Error()
	}
	return err.Error() + "\ncauses:\n- " + strings.Join(lines, "\n- ")
}

func collectCauses(err error, lines *[]string) {
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, sub := range x.Unwrap() {
			collectCauses(sub, lines)
		}
	case interface{ Unwrap() error }:
		if inner := x.Unwrap(); inner != nil {
			collectCauses(inner, lines)
			return
		}
		*lines = append(*lines, err.Error())
	default:
		*lines = append(*lines, err.Error())
	}
}

// UserMessage rewrites err into the message shown in the chat stream.
// Known failure kinds get an actionable explanation; anything else is
// passed through as-is.
func UserMessage(err error) string {
	switch Classify(err) {
	case KindProvisioning:
		return "Some assistant tools could not be started. Check that Node.js (npx) is installed, or continue without tools."
	case KindAuth:
		return "The model provider rejected your credentials. Check your API key configuration and try again."
	default:
		return err.Error()
	}
}
