package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chittyos/chittychain/pkg/evidence"
)

// MemoryStore is the in-memory Store used by tests and single-process demos.
type MemoryStore struct {
	mu sync.RWMutex

	artifacts     map[string]*evidence.Artifact
	byFingerprint map[string]string // fingerprint -> artifact ID
	byCaseFile    map[string]string // caseID + "\x00" + filename -> artifact ID

	facts map[string]*evidence.AtomicFact

	custody map[string][]*evidence.CustodyEntry // artifact ID -> entries

	contradictions map[string]*evidence.Contradiction

	audit []*evidence.AuditEntry

	blocks []*evidence.Block
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts:      make(map[string]*evidence.Artifact),
		byFingerprint:  make(map[string]string),
		byCaseFile:     make(map[string]string),
		facts:          make(map[string]*evidence.AtomicFact),
		custody:        make(map[string][]*evidence.CustodyEntry),
		contradictions: make(map[string]*evidence.Contradiction),
	}
}

func caseFileKey(caseID, filename string) string { return caseID + "\x00" + filename }

func (s *MemoryStore) InsertArtifact(ctx context.Context, a *evidence.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byFingerprint[a.Fingerprint]; ok {
		return &DuplicateError{
			Scope:          ScopeContent,
			ExistingID:     id,
			LastVerifiedAt: s.artifacts[id].LastVerifiedAt,
		}
	}
	if id, ok := s.byCaseFile[caseFileKey(a.CaseID, a.OriginalFilename)]; ok {
		return &DuplicateError{
			Scope:          ScopeFilename,
			ExistingID:     id,
			LastVerifiedAt: s.artifacts[id].LastVerifiedAt,
		}
	}

	cp := *a
	s.artifacts[a.ID] = &cp
	s.byFingerprint[a.Fingerprint] = a.ID
	s.byCaseFile[caseFileKey(a.CaseID, a.OriginalFilename)] = a.ID
	return nil
}

func (s *MemoryStore) GetArtifact(ctx context.Context, id string) (*evidence.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) FindByFingerprint(ctx context.Context, fingerprint string) (*evidence.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.artifacts[id]
	return &cp, nil
}

func (s *MemoryStore) UpdateSourceVerification(ctx context.Context, id string, prior, next evidence.SourceVerification, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Source != prior {
		return ErrStaleStatus
	}
	a.Source = next
	if next == evidence.SourceVerified {
		t := at
		a.LastVerifiedAt = &t
	}
	return nil
}

func (s *MemoryStore) UpdateChittyVerify(ctx context.Context, id string, prior, next evidence.ChittyVerifyStatus, signature string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return ErrNotFound
	}
	if a.ChittyVerify != prior {
		return ErrStaleStatus
	}
	a.ChittyVerify = next
	a.ChittySignature = signature
	t := at
	a.ChittyVerifiedAt = &t
	return nil
}

func (s *MemoryStore) UpdateMinting(ctx context.Context, id string, prior, next evidence.MintingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Minting != prior {
		return ErrStaleStatus
	}
	a.Minting = next
	return nil
}

func (s *MemoryStore) UpdateWeight(ctx context.Context, id string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return ErrNotFound
	}
	a.Weight = weight
	return nil
}

func (s *MemoryStore) ListByMinting(ctx context.Context, status evidence.MintingStatus) ([]*evidence.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.Artifact
	for _, a := range s.artifacts {
		if a.Minting == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListByCase(ctx context.Context, caseID string) ([]*evidence.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.Artifact
	for _, a := range s.artifacts {
		if a.CaseID == caseID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) InsertFact(ctx context.Context, f *evidence.AtomicFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.facts[f.ID] = &cp
	return nil
}

func (s *MemoryStore) GetFact(ctx context.Context, id string) (*evidence.AtomicFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) ListFactsByCase(ctx context.Context, caseID string) ([]*evidence.AtomicFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.AtomicFact
	for _, f := range s.facts {
		a, ok := s.artifacts[f.ArtifactID]
		if ok && a.CaseID == caseID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListFactsByArtifact(ctx context.Context, artifactID string) ([]*evidence.AtomicFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.AtomicFact
	for _, f := range s.facts {
		if f.ArtifactID == artifactID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) MarkContradicted(ctx context.Context, factID, contradictionID, classification string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[factID]
	if !ok {
		return ErrNotFound
	}
	f.ContradictionID = contradictionID
	f.ClassificationLevel = classification
	return nil
}

func (s *MemoryStore) AppendCustody(ctx context.Context, e *evidence.CustodyEntry) (*evidence.CustodyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[e.ArtifactID]; !ok {
		return nil, ErrNotFound
	}
	cp := *e
	cp.Seq = uint64(len(s.custody[e.ArtifactID])) + 1
	s.custody[e.ArtifactID] = append(s.custody[e.ArtifactID], &cp)
	out := cp
	return &out, nil
}

func (s *MemoryStore) ListCustody(ctx context.Context, artifactID string) ([]*evidence.CustodyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.custody[artifactID]
	out := make([]*evidence.CustodyEntry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) InsertContradiction(ctx context.Context, c *evidence.Contradiction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contradictions[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetContradiction(ctx context.Context, id string) (*evidence.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contradictions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ResolveContradiction(ctx context.Context, id, winningFactID, method string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contradictions[id]
	if !ok {
		return ErrNotFound
	}
	if c.ResolvedAt != nil {
		return ErrAlreadyResolved
	}
	c.WinningFactID = winningFactID
	c.ResolutionMethod = method
	t := at
	c.ResolvedAt = &t
	return nil
}

func (s *MemoryStore) ListUnresolved(ctx context.Context, caseID string) ([]*evidence.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.Contradiction
	for _, c := range s.contradictions {
		if c.CaseID == caseID && c.ResolvedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListContradictionsByCase(ctx context.Context, caseID string) ([]*evidence.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.Contradiction
	for _, c := range s.contradictions {
		if c.CaseID == caseID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AppendAudit(ctx context.Context, e *evidence.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.audit = append(s.audit, &cp)
	return nil
}

func (s *MemoryStore) QueryAudit(ctx context.Context, f AuditFilter) ([]*evidence.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*evidence.AuditEntry
	// Walk newest-first so ties on timestamp keep reverse insertion order.
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.ArtifactID != "" && e.ArtifactID != f.ArtifactID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) MintBlock(ctx context.Context, b *evidence.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every artifact before touching anything: no partial mint.
	for _, id := range b.ArtifactIDs {
		a, ok := s.artifacts[id]
		if !ok {
			return ErrNotFound
		}
		if a.Minting != evidence.MintReady {
			return ErrStaleStatus
		}
	}
	if len(s.blocks) > 0 && b.Index != s.blocks[len(s.blocks)-1].Index+1 {
		return ErrStaleStatus
	}

	cp := *b
	cp.ArtifactIDs = append([]string(nil), b.ArtifactIDs...)
	s.blocks = append(s.blocks, &cp)
	for _, id := range b.ArtifactIDs {
		s.artifacts[id].Minting = evidence.MintMinted
	}
	return nil
}

func (s *MemoryStore) HeadBlock(ctx context.Context) (*evidence.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return nil, ErrNotFound
	}
	cp := *s.blocks[len(s.blocks)-1]
	return &cp, nil
}

func (s *MemoryStore) ListBlocks(ctx context.Context) ([]*evidence.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*evidence.Block, len(s.blocks))
	for i, b := range s.blocks {
		cp := *b
		out[i] = &cp
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
