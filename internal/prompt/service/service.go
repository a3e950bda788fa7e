// Package service manages generation prompt templates.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"notto/internal/generation"
	prompt "notto/internal/prompt/models"
	"notto/internal/storage"
	dErrors "notto/pkg/domain-errors"
	"notto/pkg/platform/sentinel"
	"notto/pkg/requestcontext"

	"github.com/google/uuid"
)

type Service struct {
	store  storage.Store
	logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create stores a new template, optionally activating it immediately. The
// content must carry the names placeholder or generation would silently send
// the same prompt for every batch.
func (s *Service) Create(ctx context.Context, t prompt.Type, content string, activate bool) (prompt.Prompt, error) {
	if !t.Valid() {
		return prompt.Prompt{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("unknown prompt type %q", t))
	}
	if strings.TrimSpace(content) == "" {
		return prompt.Prompt{}, dErrors.New(dErrors.CodeBadRequest, "prompt content is required")
	}
	if !strings.Contains(content, generation.PlaceholderNames) {
		return prompt.Prompt{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("prompt content must contain the %s placeholder", generation.PlaceholderNames))
	}

	p := prompt.Prompt{
		ID:        uuid.New(),
		Type:      t,
		Content:   content,
		IsActive:  activate,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.SavePrompt(ctx, p); err != nil {
		return prompt.Prompt{}, dErrors.Wrap(err, dErrors.CodeInternal, "save prompt")
	}
	s.logger.Info("prompt created", "id", p.ID, "type", p.Type, "active", p.IsActive)
	return p, nil
}

// Activate makes the prompt the single active template for its type.
func (s *Service) Activate(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid prompt id")
	}
	err := s.store.ActivatePrompt(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "prompt does not exist")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "activate prompt")
	}
	s.logger.Info("prompt activated", "id", id)
	return nil
}

// List returns every stored template, oldest first.
func (s *Service) List(ctx context.Context) ([]prompt.Prompt, error) {
	prompts, err := s.store.ListPrompts(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list prompts")
	}
	return prompts, nil
}
