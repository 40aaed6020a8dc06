package verify

import "fmt"

// MissingFingerprintError blocks any verification attempt on an artifact
// without a content fingerprint.
type MissingFingerprintError struct {
	ArtifactID string
}

func (e *MissingFingerprintError) Error() string {
	return fmt.Sprintf("artifact %s has no content fingerprint", e.ArtifactID)
}

func (e *MissingFingerprintError) Code() string { return "MISSING_FINGERPRINT" }

// PreconditionError reports a verification attempt whose state preconditions
// do not hold, e.g. ChittyVerify before source verification.
type PreconditionError struct {
	ArtifactID string
	Reason     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("artifact %s: %s", e.ArtifactID, e.Reason)
}

func (e *PreconditionError) Code() string { return "PRECONDITION_FAILED" }

// TrustThresholdError reports a submitter whose composite trust score does
// not clear the tier's admission threshold.
type TrustThresholdError struct {
	SubmitterID string
	Score       float64
	Threshold   float64
}

func (e *TrustThresholdError) Error() string {
	return fmt.Sprintf("submitter %s trust score %.2f below required %.2f", e.SubmitterID, e.Score, e.Threshold)
}

func (e *TrustThresholdError) Code() string { return "TRUST_BELOW_THRESHOLD" }
