package intake

import (
	"fmt"
	"time"

	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/store"
)

// DuplicateContentError reports a submission whose content fingerprint
// already exists anywhere in the system. The conflicting artifact reference
// is stable: resubmitting the same content always names the same artifact.
type DuplicateContentError struct {
	Fingerprint    string
	ExistingID     string
	LastVerifiedAt *time.Time
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("content %s already admitted as artifact %s", e.Fingerprint, e.ExistingID)
}

func (e *DuplicateContentError) Code() string { return "DUPLICATE_CONTENT" }

// DuplicateFilenameError reports a submission whose original filename is
// already taken within the case.
type DuplicateFilenameError struct {
	CaseID     string
	Filename   string
	ExistingID string
}

func (e *DuplicateFilenameError) Error() string {
	return fmt.Sprintf("filename %q already used in case %s by artifact %s", e.Filename, e.CaseID, e.ExistingID)
}

func (e *DuplicateFilenameError) Code() string { return "DUPLICATE_FILENAME" }

// RateLimitedError reports a submitter exceeding the intake rate.
type RateLimitedError struct {
	SubmitterID string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("submitter %s exceeded the intake rate", e.SubmitterID)
}

func (e *RateLimitedError) Code() string { return "RATE_LIMITED" }

// PolicyDeniedError reports a submission denied by the admission policy.
type PolicyDeniedError struct {
	Rule string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("submission denied by admission policy: %s", e.Rule)
}

func (e *PolicyDeniedError) Code() string { return "POLICY_DENIED" }

// TierNotAcceptedError reports a tier the case's jurisdiction does not admit.
type TierNotAcceptedError struct {
	Jurisdiction string
	Tier         evidence.Tier
}

func (e *TierNotAcceptedError) Error() string {
	return fmt.Sprintf("jurisdiction %s does not accept tier %s", e.Jurisdiction, e.Tier)
}

func (e *TierNotAcceptedError) Code() string { return "TIER_NOT_ACCEPTED" }

// duplicateFromStore converts the store's constraint error into the intake
// reason-coded form.
func duplicateFromStore(err *store.DuplicateError, fingerprint, caseID, filename string) error {
	if err.Scope == store.ScopeContent {
		return &DuplicateContentError{
			Fingerprint:    fingerprint,
			ExistingID:     err.ExistingID,
			LastVerifiedAt: err.LastVerifiedAt,
		}
	}
	return &DuplicateFilenameError{CaseID: caseID, Filename: filename, ExistingID: err.ExistingID}
}
