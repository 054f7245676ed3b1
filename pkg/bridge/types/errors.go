package types

import "errors"

// Sentinel error kinds from the error-handling design (spec.md section 7).
// Call sites wrap these with xerrors.Errorf("...: %w", ErrX) so callers can
// still errors.Is against the kind after wrapping.
var (
	// ErrSetupFailure covers port publish, accept, group creation or
	// shared-buffer allocation failures. Fatal: terminate before any
	// payload exchange.
	ErrSetupFailure = errors.New("setup failure")

	// ErrTagInconsistency means peer ranks within one step presented
	// differing control tags.
	ErrTagInconsistency = errors.New("tag inconsistency across peers")

	// ErrBadTag means a control tag outside {0,1,2} was received.
	ErrBadTag = errors.New("bad control tag")

	// ErrTransformFailure means the numeric kernel raised an error; no
	// retry, since the buffer state is not idempotent.
	ErrTransformFailure = errors.New("transform failure")

	// ErrHandshakeTimeout means the .unlock sentinel never appeared within
	// an overall deadline (the implementer-optional wrapper around the
	// unbounded 1s poll, spec.md section 7).
	ErrHandshakeTimeout = errors.New("handshake timeout")
)
