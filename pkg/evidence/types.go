// Package evidence defines the core domain model for the ChittyChain
// Evidence Ledger: artifacts, atomic facts, custody entries, contradictions,
// audit entries and ledger blocks, plus the tier/weight trust model.
package evidence

import (
	"fmt"
	"regexp"
	"time"
)

// Tier classifies evidentiary strength. Ordered highest to lowest trust.
type Tier string

const (
	TierSelfAuthenticating    Tier = "SELF_AUTHENTICATING"
	TierGovernment            Tier = "GOVERNMENT"
	TierFinancialInstitution  Tier = "FINANCIAL_INSTITUTION"
	TierIndependentThirdParty Tier = "INDEPENDENT_THIRD_PARTY"
	TierBusinessRecords       Tier = "BUSINESS_RECORDS"
	TierFirstPartyAdverse     Tier = "FIRST_PARTY_ADVERSE"
	TierFirstPartyFriendly    Tier = "FIRST_PARTY_FRIENDLY"
	TierUncorroboratedPerson  Tier = "UNCORROBORATED_PERSON"
)

// tierBaseWeights is the canonical base-weight table. Strictly monotonic in
// evidentiary strength; unknown tiers fall back to 0.50.
var tierBaseWeights = map[Tier]float64{
	TierSelfAuthenticating:    1.00,
	TierGovernment:            0.95,
	TierFinancialInstitution:  0.90,
	TierIndependentThirdParty: 0.85,
	TierBusinessRecords:       0.75,
	TierFirstPartyAdverse:     0.70,
	TierFirstPartyFriendly:    0.60,
	TierUncorroboratedPerson:  0.40,
}

// Known reports whether t is one of the eight canonical tiers.
func (t Tier) Known() bool {
	_, ok := tierBaseWeights[t]
	return ok
}

// Outranks reports whether t carries strictly more evidentiary weight than other.
func (t Tier) Outranks(other Tier) bool {
	return BaseWeight(t) > BaseWeight(other)
}

// SourceVerification is the external-reviewer verification state.
type SourceVerification string

const (
	SourcePending  SourceVerification = "Pending"
	SourceVerified SourceVerification = "Verified"
	SourceFailed   SourceVerification = "Failed"
)

// ChittyVerifyStatus is the immutable off-chain lock state preceding minting.
type ChittyVerifyStatus string

const (
	ChittyUnverified ChittyVerifyStatus = "Unverified"
	ChittyVerified   ChittyVerifyStatus = "ChittyVerified"
	ChittyRejected   ChittyVerifyStatus = "Rejected"
)

// MintingStatus tracks ledger admission.
type MintingStatus string

const (
	MintPending               MintingStatus = "Pending"
	MintReady                 MintingStatus = "Ready"
	MintRequiresCorroboration MintingStatus = "RequiresCorroboration"
	MintRejected              MintingStatus = "Rejected"
	MintMinted                MintingStatus = "Minted"
)

// CredibilityFactor is a discrete credibility signal attached to an artifact
// or fact. Each distinct factor contributes to the weight bonus.
type CredibilityFactor string

const (
	FactorAgainstInterest     CredibilityFactor = "against_interest"
	FactorContemporaneous     CredibilityFactor = "contemporaneous"
	FactorBusinessDuty        CredibilityFactor = "business_duty"
	FactorOfficialDuty        CredibilityFactor = "official_duty"
	FactorMachineGenerated    CredibilityFactor = "machine_generated"
	FactorChainOfCustodyClean CredibilityFactor = "custody_clean"
)

// ConflictType classifies a detected contradiction between atomic facts.
type ConflictType string

const (
	ConflictDirect               ConflictType = "DIRECT_CONTRADICTION"
	ConflictTemporalImpossible   ConflictType = "TEMPORAL_IMPOSSIBILITY"
	ConflictLogicalInconsistency ConflictType = "LOGICAL_INCONSISTENCY"
	ConflictPartial              ConflictType = "PARTIAL_CONFLICT"
)

// Artifact is one admitted piece of evidence and its trust/verification
// metadata. Artifacts are retired by status, never physically deleted.
type Artifact struct {
	ID               string             `json:"id"`
	CaseID           string             `json:"case_id"`
	SubmitterID      string             `json:"submitter_id"`
	EvidenceType     string             `json:"evidence_type"`
	Tier             Tier               `json:"tier"`
	Weight           float64            `json:"weight"`
	Fingerprint      string             `json:"fingerprint"` // immutable once set
	OriginalFilename string             `json:"original_filename"`
	Source           SourceVerification `json:"source_verification"`
	ChittyVerify     ChittyVerifyStatus `json:"chitty_verify"`
	ChittyVerifiedAt *time.Time         `json:"chitty_verified_at,omitempty"`
	ChittySignature  string             `json:"chitty_signature,omitempty"`
	Minting          MintingStatus      `json:"minting"`
	AuditNotes       string             `json:"audit_notes,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	LastVerifiedAt   *time.Time         `json:"last_verified_at,omitempty"`
}

// MintEligible reports whether the artifact may enter the minting engine.
func (a *Artifact) MintEligible() bool {
	return a.ChittyVerify == ChittyVerified && a.ChittySignature != "" && a.Minting == MintReady
}

// AtomicFact is a single factual claim extracted from exactly one artifact.
type AtomicFact struct {
	ID                  string              `json:"id"`
	ArtifactID          string              `json:"artifact_id"`
	Text                string              `json:"text"`
	FactType            string              `json:"fact_type"` // date, amount, identity, ...
	ClassificationLevel string              `json:"classification_level"`
	Weight              float64             `json:"weight"`
	CredibilityFactors  []CredibilityFactor `json:"credibility_factors,omitempty"`
	SupportsTheories    []string            `json:"supports_theories,omitempty"`
	ContradictsTheories []string            `json:"contradicts_theories,omitempty"`
	Minting             MintingStatus       `json:"minting"`
	ExtractedAt         time.Time           `json:"extracted_at"`
	VerifiedAt          *time.Time          `json:"verified_at,omitempty"`
	// ContradictionID links a losing fact to the conflict that demoted it.
	// The fact text itself is never rewritten.
	ContradictionID string `json:"contradiction_id,omitempty"`
	// EventAt is the time of the event the fact describes, when known.
	// Used by the contemporaneous-record tie break.
	EventAt *time.Time `json:"event_at,omitempty"`
}

// HasFactor reports whether the fact carries the given credibility factor.
func (f *AtomicFact) HasFactor(factor CredibilityFactor) bool {
	for _, c := range f.CredibilityFactors {
		if c == factor {
			return true
		}
	}
	return false
}

// CustodyEntry records one custodial handoff of an artifact. Append-only.
type CustodyEntry struct {
	Seq               uint64     `json:"seq"`
	ArtifactID        string     `json:"artifact_id"`
	CustodianID       string     `json:"custodian_id"`
	DateReceived      time.Time  `json:"date_received"`
	DateTransferred   *time.Time `json:"date_transferred,omitempty"`
	TransferMethod    string     `json:"transfer_method"`
	IntegrityMethod   string     `json:"integrity_method"`   // stored verbatim
	IntegrityVerified bool       `json:"integrity_verified"` // supplied by caller
	Notes             string     `json:"notes,omitempty"`
}

// Contradiction references two or more conflicting facts and, once resolved,
// the winning fact. Mutated exactly once to set the resolution.
type Contradiction struct {
	ID               string       `json:"id"`
	CaseID           string       `json:"case_id"`
	ConflictType     ConflictType `json:"conflict_type"`
	FactIDs          []string     `json:"fact_ids"`
	WinningFactID    string       `json:"winning_fact_id,omitempty"` // empty = unresolved
	ResolutionMethod string       `json:"resolution_method,omitempty"`
	DetectedAt       time.Time    `json:"detected_at"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
}

// Resolved reports whether a winning fact has been determined.
func (c *Contradiction) Resolved() bool { return c.WinningFactID != "" }

// AuditSeverity grades audit entries. Tamper evidence is always recorded
// at SeverityHigh.
type AuditSeverity string

const (
	SeverityInfo AuditSeverity = "INFO"
	SeverityWarn AuditSeverity = "WARN"
	SeverityHigh AuditSeverity = "HIGH"
)

// AuditEntry is one append-only record of a state-changing or sensitive
// read operation.
type AuditEntry struct {
	ID         string        `json:"id"`
	ActorID    string        `json:"actor_id"`
	Action     string        `json:"action"`
	ArtifactID string        `json:"artifact_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	IPAddress  string        `json:"ip_address,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
	Success    bool          `json:"success"`
	Severity   AuditSeverity `json:"severity"`
	Detail     string        `json:"detail,omitempty"`
}

// Block is one hash-linked ledger block. Blocks after genesis reference
// exactly one predecessor by hash.
type Block struct {
	Index         uint64    `json:"index"`
	PreviousHash  string    `json:"previous_hash"`
	AggregateHash string    `json:"aggregate_hash"` // over contained fingerprints
	BlockHash     string    `json:"block_hash"`
	ArtifactIDs   []string  `json:"artifact_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

// caseIDPattern matches <Jurisdiction>-<Year>-<CaseType>-<CaseNumber>,
// e.g. "ILLINOIS-COOK-2024-D-007847" is not valid; "COOK-2024-D-007847" is.
var caseIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d{4}-[A-Z]+-[A-Za-z0-9]+$`)

// ValidateCaseID checks the stable public case-reference format.
func ValidateCaseID(caseID string) error {
	if !caseIDPattern.MatchString(caseID) {
		return fmt.Errorf("case id %q does not match JURISDICTION-YEAR-TYPE-NUMBER", caseID)
	}
	return nil
}
