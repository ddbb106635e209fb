package core

import "errors"

// Turn-level failure taxonomy. Retrieval problems are absorbed inside the
// retrieval engine and never surface here; everything below is fatal to the
// turn that hit it.
var (
	// ErrCredentialsExhausted means every credential in the pool is cooling
	// down. The turn fails before any persistence is attempted.
	ErrCredentialsExhausted = errors.New("ember: all credentials cooling down")

	// ErrGenerationTimeout means the model call (including retries) ran out
	// of time.
	ErrGenerationTimeout = errors.New("ember: generation timed out")

	// ErrGeneration means the model call failed after the retry budget was
	// spent, for a reason other than a timeout.
	ErrGeneration = errors.New("ember: generation failed")

	// ErrPersistence means the session store rejected the append. The
	// exchange is not visible in history and no memory was indexed.
	ErrPersistence = errors.New("ember: persisting turn failed")
)
