package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"notto/internal/draw/metrics"
	"notto/internal/generation"
	identity "notto/internal/identity/models"
	lotto "notto/internal/lotto/models"
	"notto/internal/lotto/round"
	"notto/internal/platform/lock"
	prompt "notto/internal/prompt/models"
	"notto/internal/storage"
	dErrors "notto/pkg/domain-errors"
	"notto/pkg/requestcontext"
)

// drawMetrics is shared across the suite; prometheus collectors register
// globally and must only be created once per process.
var drawMetrics = metrics.New()

// stubGenerator answers from a fixed table and records the batches it saw.
type stubGenerator struct {
	sets    map[string][]int
	batches [][]string
}

func (g *stubGenerator) Generate(_ context.Context, _ string, names []string) ([]generation.Assignment, error) {
	g.batches = append(g.batches, names)
	var out []generation.Assignment
	for _, name := range names {
		if set, ok := g.sets[name]; ok {
			out = append(out, generation.Assignment{Name: name, Numbers: set})
		}
	}
	return out, nil
}

type DrawServiceSuite struct {
	suite.Suite
	store     *storage.Memory
	generator *stubGenerator
	service   *Service
	ctx       context.Context
}

func TestDrawServiceSuite(t *testing.T) {
	suite.Run(t, new(DrawServiceSuite))
}

func (s *DrawServiceSuite) SetupTest() {
	s.store = storage.NewMemory()
	s.generator = &stubGenerator{sets: map[string][]int{}}
	s.service = New(
		s.store,
		s.generator,
		round.Default("Asia/Seoul"),
		lock.NewLocal(),
		drawMetrics,
		slog.New(slog.DiscardHandler),
		2, // small batches so batching paths are exercised
		0, // no inter-batch delay in tests
	)
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *DrawServiceSuite) activatePrompt(t prompt.Type) {
	s.Require().NoError(s.store.SavePrompt(s.ctx, prompt.Prompt{
		ID:        uuid.New(),
		Type:      t,
		Content:   "numbers for {names}",
		IsActive:  true,
		CreatedAt: time.Now(),
	}))
}

func (s *DrawServiceSuite) addIdentity(name string, status identity.Status) identity.Identity {
	id := identity.NewIdentity(name, time.Now())
	id.Status = status
	if status == identity.StatusActive {
		id.FixedNumbers = []int{1, 2, 3, 4, 5, 6}
	}
	s.Require().NoError(s.store.SaveIdentity(s.ctx, id))
	return id
}

func (s *DrawServiceSuite) TestProcessPending() {
	s.activatePrompt(prompt.TypeFixed)
	s.generator.sets["홍길동"] = []int{5, 12, 18, 23, 31, 44}
	s.addIdentity("홍길동", identity.StatusPending)
	s.addIdentity("김철수", identity.StatusPending)

	result, err := s.service.ProcessPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Processed)
	s.Equal(1, result.Failed)

	activated, err := s.store.FindIdentityByName(s.ctx, "홍길동")
	s.Require().NoError(err)
	s.Equal(identity.StatusActive, activated.Status)
	s.Equal([]int{5, 12, 18, 23, 31, 44}, activated.FixedNumbers)

	// The miss keeps its place in the queue; nothing was invented for it.
	missed, err := s.store.FindIdentityByName(s.ctx, "김철수")
	s.Require().NoError(err)
	s.Equal(identity.StatusPending, missed.Status)
	s.Empty(missed.FixedNumbers)
}

func (s *DrawServiceSuite) TestProcessPendingRetryIsIdempotent() {
	s.activatePrompt(prompt.TypeFixed)
	s.addIdentity("김철수", identity.StatusPending)

	result, err := s.service.ProcessPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Failed)

	// The generator learns the name; the retry picks it up.
	s.generator.sets["김철수"] = []int{7, 8, 9, 10, 11, 12}
	result, err = s.service.ProcessPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Processed)
	s.Zero(result.Failed)
}

func (s *DrawServiceSuite) TestProcessPendingFailsClosedWithoutPrompt() {
	s.addIdentity("홍길동", identity.StatusPending)

	_, err := s.service.ProcessPending(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoActivePrompt))

	still, err := s.store.FindIdentityByName(s.ctx, "홍길동")
	s.Require().NoError(err)
	s.Equal(identity.StatusPending, still.Status)
}

func (s *DrawServiceSuite) TestProcessPendingBatches() {
	s.activatePrompt(prompt.TypeFixed)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		s.addIdentity(name, identity.StatusPending)
		s.generator.sets[name] = []int{5, 12, 18, 23, 31, 44}
	}

	result, err := s.service.ProcessPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, result.Processed)
	s.Len(s.generator.batches, 3) // 2 + 2 + 1
}

func (s *DrawServiceSuite) TestDrawWeekly() {
	s.activatePrompt(prompt.TypeFixed)
	s.activatePrompt(prompt.TypeWeekly)
	s.addIdentity("홍길동", identity.StatusActive)
	s.addIdentity("김철수", identity.StatusActive)
	s.generator.sets["홍길동"] = []int{5, 12, 18, 23, 31, 44}

	result, err := s.service.DrawWeekly(s.ctx, 1213, "2026-02-28")
	s.Require().NoError(err)
	s.Equal(1213, result.RoundNumber)
	s.Equal("2026-02-28", result.DrawDate)
	s.Equal(1, result.Generated)
	s.Equal(1, result.Failed)
	s.Require().NotNil(result.Pending)

	created, err := s.store.FindRound(s.ctx, 1213)
	s.Require().NoError(err)
	s.False(created.HasWinningNumbers())

	rows, err := s.store.ListIdentityRounds(s.ctx, 1213)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("홍길동", rows[0].Name)
	s.Equal([]int{5, 12, 18, 23, 31, 44}, rows[0].Numbers)
	s.Nil(rows[0].MatchedCount)
}

func (s *DrawServiceSuite) TestDrawWeeklyRejectsDuplicateRound() {
	s.activatePrompt(prompt.TypeFixed)
	s.activatePrompt(prompt.TypeWeekly)

	_, err := s.service.DrawWeekly(s.ctx, 1213, "2026-02-28")
	s.Require().NoError(err)

	_, err = s.service.DrawWeekly(s.ctx, 1213, "2026-02-28")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRoundExists))
}

func (s *DrawServiceSuite) TestDrawWeeklyDerivesRoundFromCalculator() {
	s.activatePrompt(prompt.TypeFixed)
	s.activatePrompt(prompt.TypeWeekly)

	// 2026-03-01 is the day after the 1213 draw, so the next round is 1214.
	result, err := s.service.DrawWeekly(s.ctx, 0, "")
	s.Require().NoError(err)
	s.Equal(1214, result.RoundNumber)
	s.Equal("2026-03-07", result.DrawDate)
}

func (s *DrawServiceSuite) TestDrawWeeklyDrainsQueueFirst() {
	s.activatePrompt(prompt.TypeFixed)
	s.activatePrompt(prompt.TypeWeekly)
	s.addIdentity("홍길동", identity.StatusPending)
	s.generator.sets["홍길동"] = []int{5, 12, 18, 23, 31, 44}

	result, err := s.service.DrawWeekly(s.ctx, 1213, "2026-02-28")
	s.Require().NoError(err)
	s.Require().NotNil(result.Pending)
	s.Equal(1, result.Pending.Processed)

	// The freshly activated name joined the draw.
	s.Equal(1, result.Generated)
}

func (s *DrawServiceSuite) TestBackfillRound() {
	s.activatePrompt(prompt.TypeFixed)
	s.activatePrompt(prompt.TypeWeekly)
	covered := s.addIdentity("홍길동", identity.StatusActive)
	s.addIdentity("김철수", identity.StatusActive)
	s.generator.sets["김철수"] = []int{7, 8, 9, 10, 11, 12}

	s.Require().NoError(s.store.CreateRound(s.ctx, lotto.Round{
		ID: uuid.New(), RoundNumber: 1213, DrawDate: "2026-02-28", CreatedAt: time.Now(),
	}))
	s.Require().NoError(s.store.UpsertIdentityRound(s.ctx, lotto.IdentityRound{
		ID: uuid.New(), IdentityID: covered.ID, Name: covered.Name,
		RoundNumber: 1213, Numbers: []int{1, 2, 3, 4, 5, 6}, CreatedAt: time.Now(),
	}))

	result, err := s.service.BackfillRound(s.ctx, 1213)
	s.Require().NoError(err)
	s.Equal(1, result.Existing)
	s.Equal(1, result.Generated)
	s.Zero(result.Failed)

	rows, err := s.store.ListIdentityRounds(s.ctx, 1213)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	// The covered row kept its original numbers.
	for _, row := range rows {
		if row.Name == "홍길동" {
			s.Equal([]int{1, 2, 3, 4, 5, 6}, row.Numbers)
		}
	}
}

func (s *DrawServiceSuite) TestBackfillUnknownRound() {
	s.activatePrompt(prompt.TypeWeekly)

	_, err := s.service.BackfillRound(s.ctx, 9999)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DrawServiceSuite) TestSetWinningNumbers() {
	id := s.addIdentity("홍길동", identity.StatusActive)
	s.Require().NoError(s.store.CreateRound(s.ctx, lotto.Round{
		ID: uuid.New(), RoundNumber: 1213, DrawDate: "2026-02-28", CreatedAt: time.Now(),
	}))
	s.Require().NoError(s.store.UpsertIdentityRound(s.ctx, lotto.IdentityRound{
		ID: uuid.New(), IdentityID: id.ID, Name: id.Name,
		RoundNumber: 1213, Numbers: []int{5, 12, 18, 40, 41, 42}, CreatedAt: time.Now(),
	}))

	bonus := 7
	result, err := s.service.SetWinningNumbers(s.ctx, 1213, []int{44, 31, 23, 18, 12, 5}, &bonus)
	s.Require().NoError(err)
	s.Equal([]int{5, 12, 18, 23, 31, 44}, result.WinningNumbers)
	s.Equal(1, result.Recomputed)

	rows, err := s.store.ListIdentityRounds(s.ctx, 1213)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Require().NotNil(rows[0].MatchedCount)
	s.Equal(3, *rows[0].MatchedCount)

	// Re-running with a corrected result rescores cleanly.
	result, err = s.service.SetWinningNumbers(s.ctx, 1213, []int{40, 41, 42, 1, 2, 3}, nil)
	s.Require().NoError(err)
	rows, err = s.store.ListIdentityRounds(s.ctx, 1213)
	s.Require().NoError(err)
	s.Equal(3, *rows[0].MatchedCount)
}

func (s *DrawServiceSuite) TestSetWinningNumbersValidation() {
	s.Run("wrong count", func() {
		_, err := s.service.SetWinningNumbers(s.ctx, 1213, []int{1, 2, 3}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("out of range", func() {
		_, err := s.service.SetWinningNumbers(s.ctx, 1213, []int{1, 2, 3, 4, 5, 99}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("duplicate values", func() {
		_, err := s.service.SetWinningNumbers(s.ctx, 1213, []int{1, 1, 2, 3, 4, 5}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("bad bonus", func() {
		bonus := 0
		_, err := s.service.SetWinningNumbers(s.ctx, 1213, []int{1, 2, 3, 4, 5, 6}, &bonus)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown round", func() {
		_, err := s.service.SetWinningNumbers(s.ctx, 9999, []int{1, 2, 3, 4, 5, 6}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DrawServiceSuite) TestRoundInfo() {
	info, err := s.service.RoundInfo(s.ctx)
	s.Require().NoError(err)
	s.Equal(1214, info.RoundNumber)
	s.Equal("2026-03-07", info.DrawDate)
	s.False(info.HasDrawn)

	s.Require().NoError(s.store.CreateRound(s.ctx, lotto.Round{
		ID: uuid.New(), RoundNumber: 1214, DrawDate: "2026-03-07", CreatedAt: time.Now(),
	}))

	info, err = s.service.RoundInfo(s.ctx)
	s.Require().NoError(err)
	s.True(info.HasDrawn)
}
