package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/chittychain/pkg/audit"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/merkle"
	"github.com/chittyos/chittychain/pkg/store"
)

func newEngine(t *testing.T) (*Engine, *store.MemoryStore, audit.Recorder) {
	s := store.NewMemoryStore()
	rec := audit.NewStoreRecorder(s, nil)
	return NewEngine(s, rec), s, rec
}

func addReady(t *testing.T, s *store.MemoryStore, id string) {
	t.Helper()
	require.NoError(t, s.InsertArtifact(context.Background(), &evidence.Artifact{
		ID:               id,
		CaseID:           "COOK-2024-D-007847",
		SubmitterID:      "REG-00001",
		Tier:             evidence.TierGovernment,
		Fingerprint:      "sha256:" + id,
		OriginalFilename: id + ".pdf",
		Source:           evidence.SourceVerified,
		ChittyVerify:     evidence.ChittyVerified,
		ChittySignature:  "sig-" + id,
		Minting:          evidence.MintReady,
		CreatedAt:        time.Now().UTC(),
	}))
}

func TestMintLinksBlocks(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)
	addReady(t, s, "ART-AAAA0001")
	addReady(t, s, "ART-AAAA0002")

	b1, err := e.Mint(ctx, []string{"ART-AAAA0001"}, "REG-MINTER")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b1.Index)
	assert.Equal(t, "genesis", b1.PreviousHash)
	assert.NotEmpty(t, b1.BlockHash)

	b2, err := e.Mint(ctx, []string{"ART-AAAA0002"}, "REG-MINTER")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), b2.Index)
	assert.Equal(t, b1.BlockHash, b2.PreviousHash)

	// Minted artifacts are flipped.
	a, err := s.GetArtifact(ctx, "ART-AAAA0001")
	require.NoError(t, err)
	assert.Equal(t, evidence.MintMinted, a.Minting)
}

func TestAggregateHashOrderIndependent(t *testing.T) {
	h1, err := AggregateHash([]string{"sha256:a", "sha256:b", "sha256:c"})
	require.NoError(t, err)
	h2, err := AggregateHash([]string{"sha256:c", "sha256:a", "sha256:b"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := AggregateHash([]string{"sha256:a", "sha256:b"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestMintAllOrNothing(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)
	addReady(t, s, "ART-AAAA0001")
	addReady(t, s, "ART-AAAA0002")
	require.NoError(t, s.UpdateMinting(ctx, "ART-AAAA0002", evidence.MintReady, evidence.MintRequiresCorroboration))

	_, err := e.Mint(ctx, []string{"ART-AAAA0001", "ART-AAAA0002"}, "REG-MINTER")
	var notMintable *NotMintableError
	require.ErrorAs(t, err, &notMintable)
	assert.Equal(t, "ART-AAAA0002", notMintable.ArtifactID)

	// No block was written and the ready artifact is untouched.
	head, err := e.Head(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)
	a, err := s.GetArtifact(ctx, "ART-AAAA0001")
	require.NoError(t, err)
	assert.Equal(t, evidence.MintReady, a.Minting)
}

func TestMintRequiresArtifacts(t *testing.T) {
	e, _, _ := newEngine(t)
	_, err := e.Mint(context.Background(), nil, "REG-MINTER")
	assert.Error(t, err)
}

func TestValidateChainClean(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)
	for _, id := range []string{"ART-AAAA0001", "ART-AAAA0002", "ART-AAAA0003"} {
		addReady(t, s, id)
		_, err := e.Mint(ctx, []string{id}, "REG-MINTER")
		require.NoError(t, err)
	}

	report, err := e.ValidateChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Blocks)
	assert.Empty(t, report.Errors)
}

// tamperStore corrupts one block on read to simulate storage tampering.
type tamperStore struct {
	*store.MemoryStore
	tamperIndex uint64
}

func (s *tamperStore) ListBlocks(ctx context.Context) ([]*evidence.Block, error) {
	blocks, err := s.MemoryStore.ListBlocks(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if b.Index == s.tamperIndex {
			b.AggregateHash = "sha256:tampered"
		}
	}
	return blocks, nil
}

func TestValidateChainReportsFirstDivergence(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	rec := audit.NewStoreRecorder(mem, nil)
	tampered := &tamperStore{MemoryStore: mem, tamperIndex: 2}
	e := NewEngine(tampered, rec)

	for _, id := range []string{"ART-AAAA0001", "ART-AAAA0002", "ART-AAAA0003"} {
		addReady(t, mem, id)
		_, err := e.Mint(ctx, []string{id}, "REG-MINTER")
		require.NoError(t, err)
	}

	report, err := e.ValidateChain(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "block 2")

	// Tamper evidence lands in the audit trail at high severity.
	entries, err := rec.Query(ctx, store.AuditFilter{ActorID: "system"})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, evidence.SeverityHigh, entries[0].Severity)
}

func TestValidateChainEmpty(t *testing.T) {
	e, _, _ := newEngine(t)
	report, err := e.ValidateChain(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Zero(t, report.Blocks)
}

func TestInclusionProof(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)
	addReady(t, s, "ART-AAAA0001")
	addReady(t, s, "ART-AAAA0002")
	addReady(t, s, "ART-AAAA0003")

	b, err := e.Mint(ctx, []string{"ART-AAAA0001", "ART-AAAA0002", "ART-AAAA0003"}, "REG-MINTER")
	require.NoError(t, err)

	proof, err := e.InclusionProof(ctx, b.Index, "ART-AAAA0002")
	require.NoError(t, err)
	assert.Equal(t, "sha256:ART-AAAA0002", proof.Fingerprint)
	assert.True(t, merkle.Verify(proof, proof.Root))

	// Same block, all members prove.
	for _, id := range []string{"ART-AAAA0001", "ART-AAAA0003"} {
		p, err := e.InclusionProof(ctx, b.Index, id)
		require.NoError(t, err)
		assert.Equal(t, proof.Root, p.Root)
		assert.True(t, merkle.Verify(p, proof.Root))
	}

	_, err = e.InclusionProof(ctx, b.Index, "ART-ZZZZ9999")
	assert.Error(t, err)
	_, err = e.InclusionProof(ctx, 99, "ART-AAAA0001")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
