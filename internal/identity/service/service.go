// Package service implements the public name-registration operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	identity "notto/internal/identity/models"
	"notto/internal/platform/metrics"
	"notto/internal/storage"
	dErrors "notto/pkg/domain-errors"
	"notto/pkg/platform/sentinel"
	"notto/pkg/requestcontext"
)

// MaxNameLength bounds a registered name after normalization.
const MaxNameLength = 20

const (
	// DefaultPerPage and MaxPerPage bound list and search pagination.
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Sort keys accepted by List.
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortNameAsc  = "name_asc"
	SortNameDesc = "name_desc"
)

// Service exposes registration, lookup, search, and listing over the store.
type Service struct {
	store   storage.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store storage.Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, metrics: m, logger: logger}
}

// RegisterResult reports a registration. Revived is set when a previously
// rejected or deleted name returned to the queue instead of a new record
// being created.
type RegisterResult struct {
	Name    string          `json:"name"`
	Status  identity.Status `json:"status"`
	Revived bool            `json:"revived,omitempty"`
}

// NormalizeName trims the name and collapses internal whitespace runs to a
// single space.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

func validateName(raw string) (string, error) {
	name := NormalizeName(raw)
	if name == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return "", dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return name, nil
}

// Register queues a new name as pending. An active or already-pending name
// conflicts; a rejected or deleted one is revived back to pending, keeping
// its record and any fixed numbers it once held.
func (s *Service) Register(ctx context.Context, rawName string) (RegisterResult, error) {
	name, err := validateName(rawName)
	if err != nil {
		return RegisterResult{}, err
	}

	now := requestcontext.Now(ctx)

	existing, err := s.store.FindIdentityByName(ctx, name)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		id := identity.NewIdentity(name, now)
		if err := s.store.SaveIdentity(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return RegisterResult{}, dErrors.New(dErrors.CodeNameExists, "name is already registered")
			}
			return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "save identity")
		}
		s.metrics.NamesRegistered.Inc()
		s.logger.Info("name registered", "name", name)
		return RegisterResult{Name: name, Status: identity.StatusPending}, nil

	case err != nil:
		return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "find identity")
	}

	switch existing.Status {
	case identity.StatusActive, identity.StatusPending:
		return RegisterResult{}, dErrors.New(dErrors.CodeNameExists, "name is already registered")
	case identity.StatusRejected, identity.StatusDeleted:
		existing.Revive(now)
		if err := s.store.SaveIdentity(ctx, existing); err != nil {
			return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "revive identity")
		}
		s.metrics.NamesRevived.Inc()
		s.logger.Info("name revived", "name", name)
		return RegisterResult{Name: name, Status: identity.StatusPending, Revived: true}, nil
	default:
		return RegisterResult{}, dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("identity %q has unknown status %q", name, existing.Status))
	}
}

// CheckResult reports whether a name is taken and, if so, where it stands.
type CheckResult struct {
	Name   string          `json:"name"`
	Exists bool            `json:"exists"`
	Status identity.Status `json:"status,omitempty"`
}

// CheckName probes name availability without side effects.
func (s *Service) CheckName(ctx context.Context, rawName string) (CheckResult, error) {
	name, err := validateName(rawName)
	if err != nil {
		return CheckResult{}, err
	}

	existing, err := s.store.FindIdentityByName(ctx, name)
	if errors.Is(err, sentinel.ErrNotFound) {
		return CheckResult{Name: name}, nil
	}
	if err != nil {
		return CheckResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "find identity")
	}
	return CheckResult{Name: existing.Name, Exists: true, Status: existing.Status}, nil
}

// LookupResult is the public view of one identity. FixedNumbers is only
// populated for active identities; other states never leak a number set.
type LookupResult struct {
	Name         string          `json:"name"`
	Status       identity.Status `json:"status"`
	FixedNumbers []int           `json:"fixed_numbers,omitempty"`
}

// Lookup returns the fixed numbers for an exact name match.
func (s *Service) Lookup(ctx context.Context, rawName string) (LookupResult, error) {
	name, err := validateName(rawName)
	if err != nil {
		return LookupResult{}, err
	}

	id, err := s.store.FindIdentityByName(ctx, name)
	if errors.Is(err, sentinel.ErrNotFound) {
		return LookupResult{}, dErrors.New(dErrors.CodeNotFound, "name is not registered")
	}
	if err != nil {
		return LookupResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "find identity")
	}

	out := LookupResult{Name: id.Name, Status: id.Status}
	if id.Status == identity.StatusActive {
		out.FixedNumbers = id.FixedNumbers
	}
	return out, nil
}

// RoundEntry decorates a search hit with its latest drawn numbers.
type RoundEntry struct {
	RoundNumber  int   `json:"round_number"`
	Numbers      []int `json:"numbers"`
	MatchedCount *int  `json:"matched_count,omitempty"`
}

// SearchItem is one search result.
type SearchItem struct {
	Name         string          `json:"name"`
	Status       identity.Status `json:"status"`
	FixedNumbers []int           `json:"fixed_numbers,omitempty"`
	LatestRound  *RoundEntry     `json:"latest_round,omitempty"`
}

// SearchResult is a page of search hits.
type SearchResult struct {
	Items   []SearchItem `json:"items"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
}

// Search finds active identities whose name contains the query. An exact
// name match is included whatever its status, so a pending or rejected user
// can still find themselves. Hits are decorated with the latest round's
// numbers when drawn.
func (s *Service) Search(ctx context.Context, query string, page, perPage int) (SearchResult, error) {
	query = NormalizeName(query)
	if query == "" {
		return SearchResult{}, dErrors.New(dErrors.CodeBadRequest, "query is required")
	}
	page, perPage = clampPage(page, perPage)

	all, err := s.store.ListIdentities(ctx)
	if err != nil {
		return SearchResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list identities")
	}

	lowered := strings.ToLower(query)
	var hits []identity.Identity
	for _, id := range all {
		exact := strings.EqualFold(id.Name, query)
		substring := id.Status == identity.StatusActive &&
			strings.Contains(strings.ToLower(id.Name), lowered)
		if exact || substring {
			hits = append(hits, id)
		}
	}

	entries, err := s.latestRoundEntries(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{Total: len(hits), Page: page, PerPage: perPage}
	for _, id := range paginate(hits, page, perPage) {
		item := SearchItem{Name: id.Name, Status: id.Status}
		if id.Status == identity.StatusActive {
			item.FixedNumbers = id.FixedNumbers
		}
		if entry, ok := entries[id.ID.String()]; ok {
			item.LatestRound = &entry
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// ListItem is one entry of the public user directory.
type ListItem struct {
	Name         string          `json:"name"`
	Status       identity.Status `json:"status"`
	FixedNumbers []int           `json:"fixed_numbers,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// ListResult is a page of the user directory.
type ListResult struct {
	Items   []ListItem `json:"items"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// List pages through active identities with a caller-chosen sort order.
func (s *Service) List(ctx context.Context, sort string, page, perPage int) (ListResult, error) {
	page, perPage = clampPage(page, perPage)

	ids, err := s.store.ListIdentitiesByStatus(ctx, identity.StatusActive)
	if err != nil {
		return ListResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list identities")
	}

	switch sort {
	case SortOldest:
		slices.SortStableFunc(ids, func(a, b identity.Identity) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	case SortNameAsc:
		slices.SortStableFunc(ids, func(a, b identity.Identity) int {
			return strings.Compare(a.Name, b.Name)
		})
	case SortNameDesc:
		slices.SortStableFunc(ids, func(a, b identity.Identity) int {
			return strings.Compare(b.Name, a.Name)
		})
	case SortNewest, "":
		slices.SortStableFunc(ids, func(a, b identity.Identity) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	default:
		return ListResult{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("unknown sort %q", sort))
	}

	result := ListResult{Total: len(ids), Page: page, PerPage: perPage}
	for _, id := range paginate(ids, page, perPage) {
		result.Items = append(result.Items, ListItem{
			Name:         id.Name,
			Status:       id.Status,
			FixedNumbers: id.FixedNumbers,
			CreatedAt:    id.CreatedAt.Format("2006-01-02"),
		})
	}
	return result, nil
}

// latestRoundEntries maps identity ID to its row in the most recent round.
// No rounds yet means no decoration, not an error.
func (s *Service) latestRoundEntries(ctx context.Context) (map[string]RoundEntry, error) {
	latest, err := s.store.LatestRound(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "latest round")
	}

	rows, err := s.store.ListIdentityRounds(ctx, latest.RoundNumber)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list round rows")
	}

	out := make(map[string]RoundEntry, len(rows))
	for _, row := range rows {
		out[row.IdentityID.String()] = RoundEntry{
			RoundNumber:  row.RoundNumber,
			Numbers:      row.Numbers,
			MatchedCount: row.MatchedCount,
		}
	}
	return out, nil
}

func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

func paginate[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}
