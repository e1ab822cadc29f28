package resource

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy of a convergence run.
// Callers classify with errors.Is; the concrete wrapped error carries
// the human-readable detail.
var (
	// ErrTrustAnchorUnavailable means neither the keyserver lookup nor
	// the fallback certificate import produced a usable signing key.
	// Acquisition must not proceed.
	ErrTrustAnchorUnavailable = errors.New("trust anchor unavailable")

	// ErrVerificationFailed means a checksum or signature mismatch, or an
	// unverifiable condition that must be treated as failure. Scratch
	// artifacts are purged when this is returned.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrExtractionFailed means the archive structure was unexpected or a
	// filesystem error occurred while unpacking a verified artifact.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrInstallFailed means the control-script driven initialization
	// returned non-success.
	ErrInstallFailed = errors.New("install failed")

	// ErrUpgradeFailed means the updater returned non-success, or the
	// compatibility check was already failing before the upgrade started.
	ErrUpgradeFailed = errors.New("upgrade failed")

	// ErrCheckpointUnsatisfied means the post-install compatibility check
	// did not pass, blocking every downstream assertion.
	ErrCheckpointUnsatisfied = errors.New("compatibility checkpoint unsatisfied")

	// ErrManualStepPending means the run prepared everything it can and now
	// waits for the operator to finish setup out of band. Downstream
	// assertions stay unexecuted until a later run finds the step done.
	ErrManualStepPending = errors.New("manual setup step pending")
)

// ConfigError marks a self-contradictory declaration, detected at
// plan-construction time before any mutation runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
