// Package file implements the storage port as JSON documents on disk.
//
// Each collection lives in its own document (identities.json, rounds.json,
// identity_rounds.json, prompts.json). manifest.json carries an opaque
// version token that changes on every identity mutation; ApplyChanges
// compares the caller's base token against it before writing, which gives
// the same optimistic concurrency the relational backend gets from its
// version row. Writes go through a temp file and rename so a crash never
// leaves a half-written document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	identity "notto/internal/identity/models"
	lotto "notto/internal/lotto/models"
	prompt "notto/internal/prompt/models"
	"notto/pkg/platform/sentinel"
)

const (
	identitiesDoc     = "identities.json"
	roundsDoc         = "rounds.json"
	identityRoundsDoc = "identity_rounds.json"
	promptsDoc        = "prompts.json"
	manifestDoc       = "manifest.json"
)

type manifest struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists all collections under a single directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New opens (and if needed initializes) the data directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{dir: dir}

	var m manifest
	err := s.readDoc(manifestDoc, &m)
	if errors.Is(err, fs.ErrNotExist) {
		return s, s.writeDoc(manifestDoc, manifest{Version: uuid.NewString(), UpdatedAt: time.Now().UTC()})
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) readDoc(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// readCollection treats a missing document as an empty collection.
func readCollection[T any](s *Store, name string) ([]T, error) {
	var items []T
	err := s.readDoc(name, &items)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return items, nil
}

func (s *Store) writeDoc(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// bumpVersion rewrites the manifest with a fresh token. Callers hold s.mu.
func (s *Store) bumpVersion() error {
	return s.writeDoc(manifestDoc, manifest{Version: uuid.NewString(), UpdatedAt: time.Now().UTC()})
}

func (s *Store) SaveIdentity(_ context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[identity.Identity](s, identitiesDoc)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range items {
		if strings.EqualFold(existing.Name, id.Name) {
			if existing.ID != id.ID {
				return sentinel.ErrConflict
			}
			items[i] = id
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, id)
	}
	if err := s.writeDoc(identitiesDoc, items); err != nil {
		return err
	}
	return s.bumpVersion()
}

func (s *Store) FindIdentityByName(ctx context.Context, name string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[identity.Identity](s, identitiesDoc)
	if err != nil {
		return identity.Identity{}, err
	}
	for _, id := range items {
		if strings.EqualFold(id.Name, name) {
			return id, nil
		}
	}
	return identity.Identity{}, sentinel.ErrNotFound
}

func (s *Store) ListIdentities(_ context.Context) ([]identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readCollection[identity.Identity](s, identitiesDoc)
}

func (s *Store) ListIdentitiesByStatus(_ context.Context, status identity.Status) ([]identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[identity.Identity](s, identitiesDoc)
	if err != nil {
		return nil, err
	}
	var out []identity.Identity
	for _, id := range items {
		if id.Status == status {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) CreateRound(_ context.Context, r lotto.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[lotto.Round](s, roundsDoc)
	if err != nil {
		return err
	}
	for _, existing := range items {
		if existing.RoundNumber == r.RoundNumber {
			return sentinel.ErrConflict
		}
	}
	items = append(items, r)
	return s.writeDoc(roundsDoc, items)
}

func (s *Store) FindRound(_ context.Context, roundNumber int) (lotto.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[lotto.Round](s, roundsDoc)
	if err != nil {
		return lotto.Round{}, err
	}
	for _, r := range items {
		if r.RoundNumber == roundNumber {
			return r, nil
		}
	}
	return lotto.Round{}, sentinel.ErrNotFound
}

func (s *Store) LatestRound(_ context.Context) (lotto.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[lotto.Round](s, roundsDoc)
	if err != nil {
		return lotto.Round{}, err
	}
	if len(items) == 0 {
		return lotto.Round{}, sentinel.ErrNotFound
	}
	latest := items[0]
	for _, r := range items[1:] {
		if r.RoundNumber > latest.RoundNumber {
			latest = r
		}
	}
	return latest, nil
}

func (s *Store) UpdateRound(_ context.Context, r lotto.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[lotto.Round](s, roundsDoc)
	if err != nil {
		return err
	}
	for i, existing := range items {
		if existing.RoundNumber == r.RoundNumber {
			items[i] = r
			return s.writeDoc(roundsDoc, items)
		}
	}
	return sentinel.ErrNotFound
}

func (s *Store) UpsertIdentityRound(_ context.Context, row lotto.IdentityRound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[lotto.IdentityRound](s, identityRoundsDoc)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range items {
		if existing.IdentityID == row.IdentityID && existing.RoundNumber == row.RoundNumber {
			items[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, row)
	}
	return s.writeDoc(identityRoundsDoc, items)
}

func (s *Store) ListIdentityRounds(_ context.Context, roundNumber int) ([]lotto.IdentityRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[lotto.IdentityRound](s, identityRoundsDoc)
	if err != nil {
		return nil, err
	}
	var out []lotto.IdentityRound
	for _, row := range items {
		if row.RoundNumber == roundNumber {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Store) SavePrompt(_ context.Context, p prompt.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[prompt.Prompt](s, promptsDoc)
	if err != nil {
		return err
	}
	if p.IsActive {
		for i, existing := range items {
			if existing.Type == p.Type && existing.IsActive {
				items[i].IsActive = false
			}
		}
	}
	replaced := false
	for i, existing := range items {
		if existing.ID == p.ID {
			items[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, p)
	}
	return s.writeDoc(promptsDoc, items)
}

func (s *Store) ActivePrompt(_ context.Context, t prompt.Type) (prompt.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[prompt.Prompt](s, promptsDoc)
	if err != nil {
		return prompt.Prompt{}, err
	}
	for _, p := range items {
		if p.Type == t && p.IsActive {
			return p, nil
		}
	}
	return prompt.Prompt{}, sentinel.ErrNotFound
}

func (s *Store) ActivatePrompt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[prompt.Prompt](s, promptsDoc)
	if err != nil {
		return err
	}
	target := -1
	for i, p := range items {
		if p.ID.String() == id {
			target = i
			break
		}
	}
	if target < 0 {
		return sentinel.ErrNotFound
	}
	for i, p := range items {
		if p.Type == items[target].Type {
			items[i].IsActive = i == target
		}
	}
	return s.writeDoc(promptsDoc, items)
}

func (s *Store) ListPrompts(_ context.Context) ([]prompt.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readCollection[prompt.Prompt](s, promptsDoc)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b prompt.Prompt) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return items, nil
}

func (s *Store) Version(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m manifest
	if err := s.readDoc(manifestDoc, &m); err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	return m.Version, nil
}

func (s *Store) ApplyChanges(_ context.Context, baseVersion string, writes []identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m manifest
	if err := s.readDoc(manifestDoc, &m); err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if m.Version != baseVersion {
		return sentinel.ErrVersionConflict
	}

	items, err := readCollection[identity.Identity](s, identitiesDoc)
	if err != nil {
		return err
	}
	for _, w := range writes {
		replaced := false
		for i, existing := range items {
			if strings.EqualFold(existing.Name, w.Name) {
				items[i] = w
				replaced = true
				break
			}
		}
		if !replaced {
			items = append(items, w)
		}
	}
	if err := s.writeDoc(identitiesDoc, items); err != nil {
		return err
	}
	return s.bumpVersion()
}
