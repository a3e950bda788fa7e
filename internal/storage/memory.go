package storage

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	identity "notto/internal/identity/models"
	lotto "notto/internal/lotto/models"
	prompt "notto/internal/prompt/models"
	"notto/pkg/platform/sentinel"
)

// Memory is a map-backed Store for tests and local development. The version
// token is a counter bumped on every identity mutation.
type Memory struct {
	mu             sync.RWMutex
	identities     map[string]identity.Identity // keyed by lowercased name
	rounds         map[int]lotto.Round
	identityRounds map[string]lotto.IdentityRound // keyed by identityID|round
	prompts        map[string]prompt.Prompt
	version        int64
}

func NewMemory() *Memory {
	return &Memory{
		identities:     make(map[string]identity.Identity),
		rounds:         make(map[int]lotto.Round),
		identityRounds: make(map[string]lotto.IdentityRound),
		prompts:        make(map[string]prompt.Prompt),
	}
}

func identityKey(name string) string {
	return strings.ToLower(name)
}

func (m *Memory) SaveIdentity(_ context.Context, id identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identityKey(id.Name)
	if existing, ok := m.identities[key]; ok && existing.ID != id.ID {
		return sentinel.ErrConflict
	}
	m.identities[key] = cloneIdentity(id)
	m.version++
	return nil
}

func (m *Memory) FindIdentityByName(_ context.Context, name string) (identity.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.identities[identityKey(name)]
	if !ok {
		return identity.Identity{}, sentinel.ErrNotFound
	}
	return cloneIdentity(id), nil
}

func (m *Memory) ListIdentities(_ context.Context) ([]identity.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]identity.Identity, 0, len(m.identities))
	for _, id := range m.identities {
		out = append(out, cloneIdentity(id))
	}
	sortIdentities(out)
	return out, nil
}

func (m *Memory) ListIdentitiesByStatus(_ context.Context, status identity.Status) ([]identity.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []identity.Identity
	for _, id := range m.identities {
		if id.Status == status {
			out = append(out, cloneIdentity(id))
		}
	}
	sortIdentities(out)
	return out, nil
}

func (m *Memory) CreateRound(_ context.Context, r lotto.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rounds[r.RoundNumber]; ok {
		return sentinel.ErrConflict
	}
	m.rounds[r.RoundNumber] = cloneRound(r)
	return nil
}

func (m *Memory) FindRound(_ context.Context, roundNumber int) (lotto.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rounds[roundNumber]
	if !ok {
		return lotto.Round{}, sentinel.ErrNotFound
	}
	return cloneRound(r), nil
}

func (m *Memory) LatestRound(_ context.Context) (lotto.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest lotto.Round
	found := false
	for _, r := range m.rounds {
		if !found || r.RoundNumber > latest.RoundNumber {
			latest = r
			found = true
		}
	}
	if !found {
		return lotto.Round{}, sentinel.ErrNotFound
	}
	return cloneRound(latest), nil
}

func (m *Memory) UpdateRound(_ context.Context, r lotto.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rounds[r.RoundNumber]; !ok {
		return sentinel.ErrNotFound
	}
	m.rounds[r.RoundNumber] = cloneRound(r)
	return nil
}

func identityRoundKey(row lotto.IdentityRound) string {
	return row.IdentityID.String() + "|" + strconv.Itoa(row.RoundNumber)
}

func (m *Memory) UpsertIdentityRound(_ context.Context, row lotto.IdentityRound) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.identityRounds[identityRoundKey(row)] = cloneIdentityRound(row)
	return nil
}

func (m *Memory) ListIdentityRounds(_ context.Context, roundNumber int) ([]lotto.IdentityRound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []lotto.IdentityRound
	for _, row := range m.identityRounds {
		if row.RoundNumber == roundNumber {
			out = append(out, cloneIdentityRound(row))
		}
	}
	slices.SortFunc(out, func(a, b lotto.IdentityRound) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (m *Memory) SavePrompt(_ context.Context, p prompt.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IsActive {
		m.deactivateType(p.Type)
	}
	m.prompts[p.ID.String()] = p
	return nil
}

func (m *Memory) ActivePrompt(_ context.Context, t prompt.Type) (prompt.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.prompts {
		if p.Type == t && p.IsActive {
			return p, nil
		}
	}
	return prompt.Prompt{}, sentinel.ErrNotFound
}

func (m *Memory) ActivatePrompt(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prompts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	m.deactivateType(p.Type)
	p.IsActive = true
	m.prompts[id] = p
	return nil
}

func (m *Memory) ListPrompts(_ context.Context) ([]prompt.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]prompt.Prompt, 0, len(m.prompts))
	for _, p := range m.prompts {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b prompt.Prompt) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (m *Memory) deactivateType(t prompt.Type) {
	for id, p := range m.prompts {
		if p.Type == t && p.IsActive {
			p.IsActive = false
			m.prompts[id] = p
		}
	}
}

func (m *Memory) Version(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return strconv.FormatInt(m.version, 10), nil
}

func (m *Memory) ApplyChanges(_ context.Context, baseVersion string, writes []identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if baseVersion != strconv.FormatInt(m.version, 10) {
		return sentinel.ErrVersionConflict
	}
	for _, id := range writes {
		m.identities[identityKey(id.Name)] = cloneIdentity(id)
	}
	m.version++
	return nil
}

func sortIdentities(out []identity.Identity) {
	slices.SortFunc(out, func(a, b identity.Identity) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func cloneIdentity(id identity.Identity) identity.Identity {
	id.FixedNumbers = slices.Clone(id.FixedNumbers)
	return id
}

func cloneRound(r lotto.Round) lotto.Round {
	r.WinningNumbers = slices.Clone(r.WinningNumbers)
	if r.BonusNumber != nil {
		b := *r.BonusNumber
		r.BonusNumber = &b
	}
	if r.WinningSetAt != nil {
		t := *r.WinningSetAt
		r.WinningSetAt = &t
	}
	return r
}

func cloneIdentityRound(row lotto.IdentityRound) lotto.IdentityRound {
	row.Numbers = slices.Clone(row.Numbers)
	if row.MatchedCount != nil {
		c := *row.MatchedCount
		row.MatchedCount = &c
	}
	return row
}
