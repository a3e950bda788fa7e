// Package service runs the generation pipelines: activating queued names,
// drawing the weekly round, backfilling missed rows, and scoring results.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"notto/internal/draw/metrics"
	"notto/internal/generation"
	identity "notto/internal/identity/models"
	lotto "notto/internal/lotto/models"
	"notto/internal/lotto/numbers"
	"notto/internal/lotto/round"
	"notto/internal/platform/lock"
	prompt "notto/internal/prompt/models"
	"notto/internal/storage"
	dErrors "notto/pkg/domain-errors"
	"notto/pkg/platform/sentinel"
	"notto/pkg/requestcontext"
)

const (
	lockProcessPending = "process_pending"
	lockDrawWeekly     = "draw_weekly"
	lockTTL            = 5 * time.Minute

	// DefaultBatchSize and DefaultBatchDelay pace generator calls.
	DefaultBatchSize  = 15
	DefaultBatchDelay = 3 * time.Second
)

// Result reports one ProcessPending run.
type Result struct {
	Processed int   `json:"processed"`
	Failed    int   `json:"failed"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// DrawResult reports one weekly draw. Pending carries the queue-drain report
// when the drain ran; a drain failure is logged and leaves it nil without
// blocking the draw.
type DrawResult struct {
	RoundNumber int     `json:"round_number"`
	DrawDate    string  `json:"draw_date"`
	Generated   int     `json:"generated"`
	Failed      int     `json:"failed"`
	Pending     *Result `json:"pending,omitempty"`
}

// BackfillResult reports a repair run over an existing round.
type BackfillResult struct {
	RoundNumber int `json:"round_number"`
	Existing    int `json:"existing"`
	Generated   int `json:"generated"`
	Failed      int `json:"failed"`
}

// RoundInfo combines the calculator's view of the current round with what
// the store knows about it. The calculator is authoritative for the round
// number; the store only answers whether that round has been drawn.
type RoundInfo struct {
	round.Info
	HasDrawn       bool  `json:"has_drawn"`
	WinningNumbers []int `json:"winning_numbers,omitempty"`
	BonusNumber    *int  `json:"bonus_number,omitempty"`
}

// WinningResult reports recorded winning numbers and the rescored rows.
type WinningResult struct {
	RoundNumber    int   `json:"round_number"`
	WinningNumbers []int `json:"winning_numbers"`
	BonusNumber    *int  `json:"bonus_number,omitempty"`
	Recomputed     int   `json:"recomputed"`
}

// Service owns the queue, draw, backfill, and scoring pipelines.
type Service struct {
	store      storage.Store
	generator  generation.Generator
	calc       round.Calculator
	locker     lock.Locker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	batchSize  int
	batchDelay time.Duration
}

func New(store storage.Store, generator generation.Generator, calc round.Calculator, locker lock.Locker, m *metrics.Metrics, logger *slog.Logger, batchSize int, batchDelay time.Duration) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchDelay < 0 {
		batchDelay = DefaultBatchDelay
	}
	return &Service{
		store:      store,
		generator:  generator,
		calc:       calc,
		locker:     locker,
		metrics:    m,
		logger:     logger,
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}
}

// ProcessPending activates queued names in FIFO order. It fails closed when
// no fixed prompt is active. Names the generator misses keep their pending
// status and are retried on the next run; this path never assigns random
// numbers.
func (s *Service) ProcessPending(ctx context.Context) (Result, error) {
	release, ok, err := s.locker.TryAcquire(ctx, lockProcessPending, lockTTL)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "acquire queue lock")
	}
	if !ok {
		return Result{}, dErrors.New(dErrors.CodeConflict, "pending queue is already being processed")
	}
	defer release()

	started := time.Now()

	tpl, err := s.activePrompt(ctx, prompt.TypeFixed)
	if err != nil {
		return Result{}, err
	}

	pending, err := s.store.ListIdentitiesByStatus(ctx, identity.StatusPending)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "list pending identities")
	}

	var result Result
	now := requestcontext.Now(ctx)

	for i, batch := range batchIdentities(pending, s.batchSize) {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return result, dErrors.Wrap(err, dErrors.CodeInternal, "queue processing interrupted")
			}
		}

		assigned := s.generate(ctx, tpl, names(batch))

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range batch {
			set, ok := assigned[id.Name]
			if !ok {
				result.Failed++
				s.metrics.PendingFailed.Inc()
				s.metrics.GenerationMisses.Inc()
				continue
			}
			g.Go(func() error {
				id.Activate(set, now)
				if err := s.store.SaveIdentity(gctx, id); err != nil {
					return fmt.Errorf("activate %q: %w", id.Name, err)
				}
				return nil
			})
			result.Processed++
			s.metrics.PendingProcessed.Inc()
		}
		if err := g.Wait(); err != nil {
			return result, dErrors.Wrap(err, dErrors.CodeInternal, "persist activated identities")
		}
	}

	result.ElapsedMS = time.Since(started).Milliseconds()
	s.logger.Info("pending queue processed",
		"processed", result.Processed, "failed", result.Failed, "elapsed_ms", result.ElapsedMS)
	return result, nil
}

// DrawWeekly creates the round and generates every active identity's numbers
// for it. The pending queue is drained first so names registered during the
// week join the draw; a drain failure is reported in the log but does not
// block the round.
//
// roundNumber <= 0 derives the round and draw date from the calculator. A
// round that already exists fails the whole call before any generation.
func (s *Service) DrawWeekly(ctx context.Context, roundNumber int, drawDate string) (DrawResult, error) {
	release, ok, err := s.locker.TryAcquire(ctx, lockDrawWeekly, lockTTL)
	if err != nil {
		return DrawResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "acquire draw lock")
	}
	if !ok {
		return DrawResult{}, dErrors.New(dErrors.CodeConflict, "a draw is already running")
	}
	defer release()

	now := requestcontext.Now(ctx)
	if roundNumber <= 0 {
		roundNumber = s.calc.Current(now)
	}
	if drawDate == "" {
		drawDate = s.calc.DrawDate(roundNumber).Format("2006-01-02")
	}

	result := DrawResult{RoundNumber: roundNumber, DrawDate: drawDate}

	if pending, err := s.ProcessPending(ctx); err != nil {
		s.logger.Warn("queue drain before draw failed", "round", roundNumber, "error", err)
	} else {
		result.Pending = &pending
	}

	if _, err := s.store.FindRound(ctx, roundNumber); err == nil {
		return DrawResult{}, dErrors.New(dErrors.CodeRoundExists,
			fmt.Sprintf("round %d has already been drawn", roundNumber))
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return DrawResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "check round")
	}

	tpl, err := s.activePrompt(ctx, prompt.TypeWeekly)
	if err != nil {
		return DrawResult{}, err
	}

	// The round row is created before generation so a crash mid-run leaves a
	// visible, backfillable round instead of silently missing one.
	if err := s.store.CreateRound(ctx, lotto.Round{
		ID:          uuid.New(),
		RoundNumber: roundNumber,
		DrawDate:    drawDate,
		CreatedAt:   now,
	}); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return DrawResult{}, dErrors.New(dErrors.CodeRoundExists,
				fmt.Sprintf("round %d has already been drawn", roundNumber))
		}
		return DrawResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "create round")
	}
	s.metrics.RoundsDrawn.Inc()

	actives, err := s.store.ListIdentitiesByStatus(ctx, identity.StatusActive)
	if err != nil {
		return DrawResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list active identities")
	}

	generated, failed, err := s.generateRows(ctx, tpl, actives, roundNumber, now)
	result.Generated = generated
	result.Failed = failed
	if err != nil {
		return result, err
	}

	s.logger.Info("weekly draw complete",
		"round", roundNumber, "draw_date", drawDate,
		"generated", result.Generated, "failed", result.Failed)
	return result, nil
}

// BackfillRound repairs an existing round by generating numbers only for the
// active identities that have no row in it. Existing rows are never touched
// and no round is created.
func (s *Service) BackfillRound(ctx context.Context, roundNumber int) (BackfillResult, error) {
	if _, err := s.store.FindRound(ctx, roundNumber); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return BackfillResult{}, dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("round %d does not exist", roundNumber))
		}
		return BackfillResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "find round")
	}

	tpl, err := s.activePrompt(ctx, prompt.TypeWeekly)
	if err != nil {
		return BackfillResult{}, err
	}

	rows, err := s.store.ListIdentityRounds(ctx, roundNumber)
	if err != nil {
		return BackfillResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list round rows")
	}
	covered := make(map[uuid.UUID]bool, len(rows))
	for _, row := range rows {
		covered[row.IdentityID] = true
	}

	actives, err := s.store.ListIdentitiesByStatus(ctx, identity.StatusActive)
	if err != nil {
		return BackfillResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list active identities")
	}
	missing := make([]identity.Identity, 0, len(actives))
	for _, id := range actives {
		if !covered[id.ID] {
			missing = append(missing, id)
		}
	}

	result := BackfillResult{RoundNumber: roundNumber, Existing: len(rows)}
	now := requestcontext.Now(ctx)

	generated, failed, err := s.generateRows(ctx, tpl, missing, roundNumber, now)
	result.Generated = generated
	result.Failed = failed
	if err != nil {
		return result, err
	}

	s.logger.Info("round backfilled",
		"round", roundNumber, "existing", result.Existing,
		"generated", result.Generated, "failed", result.Failed)
	return result, nil
}

// SetWinningNumbers records the official result on a round and rescores every
// row in it. Rescoring is pure so the call can be repeated to fix a mistyped
// result.
func (s *Service) SetWinningNumbers(ctx context.Context, roundNumber int, winning []int, bonus *int) (WinningResult, error) {
	if len(winning) != numbers.SetSize {
		return WinningResult{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("winning numbers must be exactly %d values", numbers.SetSize))
	}
	set, ok := numbers.Validate(winning)
	if !ok {
		return WinningResult{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("winning numbers must be %d distinct values between %d and %d",
				numbers.SetSize, numbers.Min, numbers.Max))
	}
	if bonus != nil && !numbers.InBonusRange(*bonus) {
		return WinningResult{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("bonus number must be between %d and %d", numbers.Min, numbers.MaxBonus))
	}

	r, err := s.store.FindRound(ctx, roundNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return WinningResult{}, dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("round %d does not exist", roundNumber))
		}
		return WinningResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "find round")
	}

	now := requestcontext.Now(ctx)
	r.WinningNumbers = set
	r.BonusNumber = bonus
	r.WinningSetAt = &now
	if err := s.store.UpdateRound(ctx, r); err != nil {
		return WinningResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "update round")
	}

	rows, err := s.store.ListIdentityRounds(ctx, roundNumber)
	if err != nil {
		return WinningResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list round rows")
	}
	for _, row := range rows {
		matched := numbers.MatchCount(row.Numbers, set)
		row.MatchedCount = &matched
		if err := s.store.UpsertIdentityRound(ctx, row); err != nil {
			return WinningResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "rescore round row")
		}
	}

	s.logger.Info("winning numbers recorded",
		"round", roundNumber, "numbers", set, "recomputed", len(rows))
	return WinningResult{
		RoundNumber:    roundNumber,
		WinningNumbers: set,
		BonusNumber:    bonus,
		Recomputed:     len(rows),
	}, nil
}

// RoundInfo reports the current round per the calculator, decorated with the
// store's draw state for that round.
func (s *Service) RoundInfo(ctx context.Context) (RoundInfo, error) {
	info := RoundInfo{Info: s.calc.CurrentInfo(requestcontext.Now(ctx))}

	r, err := s.store.FindRound(ctx, info.RoundNumber)
	if errors.Is(err, sentinel.ErrNotFound) {
		return info, nil
	}
	if err != nil {
		return RoundInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "find round")
	}
	info.HasDrawn = true
	info.WinningNumbers = r.WinningNumbers
	info.BonusNumber = r.BonusNumber
	return info, nil
}

// generateRows runs the batched generator over identities and upserts one
// IdentityRound per answered name. Misses are counted, logged, and left for
// a backfill; this pipeline does not invent numbers locally.
func (s *Service) generateRows(ctx context.Context, tpl string, ids []identity.Identity, roundNumber int, now time.Time) (generated, failed int, err error) {
	for i, batch := range batchIdentities(ids, s.batchSize) {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return generated, failed, dErrors.Wrap(err, dErrors.CodeInternal, "generation interrupted")
			}
		}

		assigned := s.generate(ctx, tpl, names(batch))

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range batch {
			set, ok := assigned[id.Name]
			if !ok {
				failed++
				s.metrics.GenerationMisses.Inc()
				s.logger.Warn("no numbers generated", "name", id.Name, "round", roundNumber)
				continue
			}
			row := lotto.IdentityRound{
				ID:          uuid.New(),
				IdentityID:  id.ID,
				Name:        id.Name,
				RoundNumber: roundNumber,
				Numbers:     set,
				CreatedAt:   now,
			}
			g.Go(func() error {
				if err := s.store.UpsertIdentityRound(gctx, row); err != nil {
					return fmt.Errorf("persist numbers for %q: %w", row.Name, err)
				}
				return nil
			})
			generated++
			s.metrics.NumbersGenerated.Inc()
		}
		if err := g.Wait(); err != nil {
			return generated, failed, dErrors.Wrap(err, dErrors.CodeInternal, "persist round rows")
		}
	}
	return generated, failed, nil
}

// generate wraps one generator call with timing. The generator contract
// already swallows upstream failures into an empty result.
func (s *Service) generate(ctx context.Context, tpl string, batch []string) map[string][]int {
	started := time.Now()
	assignments, err := s.generator.Generate(ctx, tpl, batch)
	s.metrics.GenerationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.logger.Warn("generator error", "names", len(batch), "error", err)
		return nil
	}
	return generation.ToMap(assignments)
}

func (s *Service) activePrompt(ctx context.Context, t prompt.Type) (string, error) {
	p, err := s.store.ActivePrompt(ctx, t)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNoActivePrompt,
			fmt.Sprintf("no active %s prompt is configured", t))
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load active prompt")
	}
	return p.Content, nil
}

// pause waits the inter-batch delay, aborting early on context cancellation.
func (s *Service) pause(ctx context.Context) error {
	if s.batchDelay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.batchDelay):
		return nil
	}
}

func batchIdentities(ids []identity.Identity, size int) [][]identity.Identity {
	if len(ids) == 0 {
		return nil
	}
	out := make([][]identity.Identity, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

func names(ids []identity.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}
