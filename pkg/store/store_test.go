package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/chittychain/pkg/evidence"
)

// The semantic suite runs against every backend so the invariants hold
// regardless of which store a deployment wires in.
var backends = []struct {
	name string
	open func(t *testing.T) Store
}{
	{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
	{"sqlite", func(t *testing.T) Store {
		s, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		return s
	}},
}

func testArtifact(id, caseID, fingerprint, filename string) *evidence.Artifact {
	return &evidence.Artifact{
		ID:               id,
		CaseID:           caseID,
		SubmitterID:      "REG-00001",
		EvidenceType:     "document",
		Tier:             evidence.TierGovernment,
		Weight:           0.95,
		Fingerprint:      fingerprint,
		OriginalFilename: filename,
		Source:           evidence.SourcePending,
		ChittyVerify:     evidence.ChittyUnverified,
		Minting:          evidence.MintPending,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestInsertArtifactDuplicateContent(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)

			a := testArtifact("ART-AAAA0001", "COOK-2024-D-007847", "sha256:h1", "deed.pdf")
			require.NoError(t, s.InsertArtifact(ctx, a))

			// Same fingerprint, different case: global conflict.
			b := testArtifact("ART-AAAA0002", "NY-2023-CV-12345", "sha256:h1", "other.pdf")
			err := s.InsertArtifact(ctx, b)
			var dup *DuplicateError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, ScopeContent, dup.Scope)
			assert.Equal(t, "ART-AAAA0001", dup.ExistingID)

			// Resubmission keeps returning the same conflict reference.
			err = s.InsertArtifact(ctx, b)
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, "ART-AAAA0001", dup.ExistingID)
		})
	}
}

func TestInsertArtifactDuplicateFilenameScopedToCase(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)

			require.NoError(t, s.InsertArtifact(ctx, testArtifact("ART-AAAA0001", "COOK-2024-D-007847", "sha256:h1", "deed.pdf")))

			// Same filename in the same case conflicts.
			err := s.InsertArtifact(ctx, testArtifact("ART-AAAA0002", "COOK-2024-D-007847", "sha256:h2", "deed.pdf"))
			var dup *DuplicateError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, ScopeFilename, dup.Scope)
			assert.Equal(t, "ART-AAAA0001", dup.ExistingID)

			// Same filename in a different case is fine.
			require.NoError(t, s.InsertArtifact(ctx, testArtifact("ART-AAAA0003", "NY-2023-CV-12345", "sha256:h3", "deed.pdf")))
		})
	}
}

func TestOptimisticStatusGuards(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)
			now := time.Now().UTC()

			require.NoError(t, s.InsertArtifact(ctx, testArtifact("ART-AAAA0001", "COOK-2024-D-007847", "sha256:h1", "deed.pdf")))

			require.NoError(t, s.UpdateSourceVerification(ctx, "ART-AAAA0001", evidence.SourcePending, evidence.SourceVerified, now))

			// A second transition assuming Pending must fail, not overwrite.
			err := s.UpdateSourceVerification(ctx, "ART-AAAA0001", evidence.SourcePending, evidence.SourceFailed, now)
			assert.ErrorIs(t, err, ErrStaleStatus)

			got, err := s.GetArtifact(ctx, "ART-AAAA0001")
			require.NoError(t, err)
			assert.Equal(t, evidence.SourceVerified, got.Source)
			require.NotNil(t, got.LastVerifiedAt)

			// Unknown artifact is NotFound, not stale.
			err = s.UpdateMinting(ctx, "ART-MISSING1", evidence.MintPending, evidence.MintReady)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestChittyVerifyUpdateStoresSignature(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)
			at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			require.NoError(t, s.InsertArtifact(ctx, testArtifact("ART-AAAA0001", "COOK-2024-D-007847", "sha256:h1", "deed.pdf")))
			require.NoError(t, s.UpdateChittyVerify(ctx, "ART-AAAA0001", evidence.ChittyUnverified, evidence.ChittyVerified, "sig-abc", at))

			got, err := s.GetArtifact(ctx, "ART-AAAA0001")
			require.NoError(t, err)
			assert.Equal(t, evidence.ChittyVerified, got.ChittyVerify)
			assert.Equal(t, "sig-abc", got.ChittySignature)
			require.NotNil(t, got.ChittyVerifiedAt)
			assert.True(t, got.ChittyVerifiedAt.Equal(at))

			err = s.UpdateChittyVerify(ctx, "ART-AAAA0001", evidence.ChittyUnverified, evidence.ChittyRejected, "", at)
			assert.ErrorIs(t, err, ErrStaleStatus)
		})
	}
}

func TestCustodyAppendOnlyOrdering(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)

			require.NoError(t, s.InsertArtifact(ctx, testArtifact("ART-AAAA0001", "COOK-2024-D-007847", "sha256:h1", "deed.pdf")))

			for i, custodian := range []string{"REG-CLERK1", "REG-COURIER", "REG-EVIDROOM"} {
				e, err := s.AppendCustody(ctx, &evidence.CustodyEntry{
					ArtifactID:        "ART-AAAA0001",
					CustodianID:       custodian,
					DateReceived:      time.Now().UTC(),
					TransferMethod:    "sealed envelope",
					IntegrityMethod:   "hash verification",
					IntegrityVerified: true,
				})
				require.NoError(t, err)
				assert.Equal(t, uint64(i+1), e.Seq)
			}

			entries, err := s.ListCustody(ctx, "ART-AAAA0001")
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, "REG-CLERK1", entries[0].CustodianID)
			assert.Equal(t, "REG-EVIDROOM", entries[2].CustodianID)

			_, err = s.AppendCustody(ctx, &evidence.CustodyEntry{ArtifactID: "ART-MISSING1"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestContradictionResolveOnce(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)
			now := time.Now().UTC()

			c := &evidence.Contradiction{
				ID:           "CONFLICT-AB12CD",
				CaseID:       "COOK-2024-D-007847",
				ConflictType: evidence.ConflictDirect,
				FactIDs:      []string{"FACT-AAAA0001", "FACT-AAAA0002"},
				DetectedAt:   now,
			}
			require.NoError(t, s.InsertContradiction(ctx, c))

			unresolved, err := s.ListUnresolved(ctx, "COOK-2024-D-007847")
			require.NoError(t, err)
			require.Len(t, unresolved, 1)

			require.NoError(t, s.ResolveContradiction(ctx, c.ID, "FACT-AAAA0001", "authentication superiority", now))

			// Immutable after resolution.
			err = s.ResolveContradiction(ctx, c.ID, "FACT-AAAA0002", "temporal priority", now)
			assert.ErrorIs(t, err, ErrAlreadyResolved)

			got, err := s.GetContradiction(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, "FACT-AAAA0001", got.WinningFactID)
			assert.True(t, got.Resolved())

			unresolved, err = s.ListUnresolved(ctx, "COOK-2024-D-007847")
			require.NoError(t, err)
			assert.Empty(t, unresolved)

			// Resolved records stay visible to the full-case listing.
			all, err := s.ListContradictionsByCase(ctx, "COOK-2024-D-007847")
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.True(t, all[0].Resolved())

			all, err = s.ListContradictionsByCase(ctx, "COOK-2024-D-000000")
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestAuditQueryFiltersAndOrder(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)
			base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			for i := 0; i < 5; i++ {
				actor := "REG-00001"
				if i%2 == 1 {
					actor = "REG-00002"
				}
				require.NoError(t, s.AppendAudit(ctx, &evidence.AuditEntry{
					ID:        evidence.NewArtifactID() + "-A", // unique enough for the test
					ActorID:   actor,
					Action:    "artifact.admit",
					Timestamp: base.Add(time.Duration(i) * time.Minute),
					Success:   true,
					Severity:  evidence.SeverityInfo,
				}))
			}

			all, err := s.QueryAudit(ctx, AuditFilter{})
			require.NoError(t, err)
			require.Len(t, all, 5)
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].Timestamp.After(all[i-1].Timestamp), "descending order")
			}

			byActor, err := s.QueryAudit(ctx, AuditFilter{ActorID: "REG-00002"})
			require.NoError(t, err)
			assert.Len(t, byActor, 2)

			limited, err := s.QueryAudit(ctx, AuditFilter{Limit: 3})
			require.NoError(t, err)
			assert.Len(t, limited, 3)
		})
	}
}

func TestMintBlockAtomicity(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)

			ready1 := testArtifact("ART-AAAA0001", "COOK-2024-D-007847", "sha256:h1", "a.pdf")
			ready1.Minting = evidence.MintReady
			ready2 := testArtifact("ART-AAAA0002", "COOK-2024-D-007847", "sha256:h2", "b.pdf")
			ready2.Minting = evidence.MintReady
			pending := testArtifact("ART-AAAA0003", "COOK-2024-D-007847", "sha256:h3", "c.pdf")

			require.NoError(t, s.InsertArtifact(ctx, ready1))
			require.NoError(t, s.InsertArtifact(ctx, ready2))
			require.NoError(t, s.InsertArtifact(ctx, pending))

			// One non-Ready artifact fails the whole mint; nothing is written.
			err := s.MintBlock(ctx, &evidence.Block{
				Index:         1,
				PreviousHash:  "genesis",
				AggregateHash: "agg",
				BlockHash:     "h",
				ArtifactIDs:   []string{"ART-AAAA0001", "ART-AAAA0002", "ART-AAAA0003"},
				CreatedAt:     time.Now().UTC(),
			})
			assert.ErrorIs(t, err, ErrStaleStatus)

			blocks, err := s.ListBlocks(ctx)
			require.NoError(t, err)
			assert.Empty(t, blocks)

			still, err := s.GetArtifact(ctx, "ART-AAAA0001")
			require.NoError(t, err)
			assert.Equal(t, evidence.MintReady, still.Minting)

			// Minting only the Ready artifacts succeeds and flips statuses.
			require.NoError(t, s.MintBlock(ctx, &evidence.Block{
				Index:         1,
				PreviousHash:  "genesis",
				AggregateHash: "agg",
				BlockHash:     "h",
				ArtifactIDs:   []string{"ART-AAAA0001", "ART-AAAA0002"},
				CreatedAt:     time.Now().UTC(),
			}))

			head, err := s.HeadBlock(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), head.Index)

			minted, err := s.GetArtifact(ctx, "ART-AAAA0002")
			require.NoError(t, err)
			assert.Equal(t, evidence.MintMinted, minted.Minting)
		})
	}
}

func TestHeadBlockEmpty(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			_, err := be.open(t).HeadBlock(context.Background())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFactsRoundTrip(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			s := be.open(t)

			require.NoError(t, s.InsertArtifact(ctx, testArtifact("ART-AAAA0001", "COOK-2024-D-007847", "sha256:h1", "deed.pdf")))

			f := &evidence.AtomicFact{
				ID:                  "FACT-AAAA0001",
				ArtifactID:          "ART-AAAA0001",
				Text:                "transfer recorded 2024-02-01",
				FactType:            "date",
				ClassificationLevel: "FACT",
				Weight:              0.95,
				CredibilityFactors:  []evidence.CredibilityFactor{evidence.FactorContemporaneous},
				SupportsTheories:    []string{"timeline-A"},
				Minting:             evidence.MintPending,
				ExtractedAt:         time.Now().UTC(),
			}
			require.NoError(t, s.InsertFact(ctx, f))

			got, err := s.GetFact(ctx, "FACT-AAAA0001")
			require.NoError(t, err)
			assert.Equal(t, f.Text, got.Text)
			assert.Equal(t, []evidence.CredibilityFactor{evidence.FactorContemporaneous}, got.CredibilityFactors)

			byCase, err := s.ListFactsByCase(ctx, "COOK-2024-D-007847")
			require.NoError(t, err)
			assert.Len(t, byCase, 1)

			require.NoError(t, s.MarkContradicted(ctx, "FACT-AAAA0001", "CONFLICT-AB12CD", "CONTRADICTED"))
			got, err = s.GetFact(ctx, "FACT-AAAA0001")
			require.NoError(t, err)
			assert.Equal(t, "CONFLICT-AB12CD", got.ContradictionID)
			assert.Equal(t, "CONTRADICTED", got.ClassificationLevel)
			// Text untouched.
			assert.Equal(t, "transfer recorded 2024-02-01", got.Text)
		})
	}
}
