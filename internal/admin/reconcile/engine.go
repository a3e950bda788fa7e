package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"notto/internal/generation"
	identity "notto/internal/identity/models"
	"notto/internal/lotto/numbers"
	prompt "notto/internal/prompt/models"
	"notto/internal/storage"
	dErrors "notto/pkg/domain-errors"
	"notto/pkg/platform/sentinel"
	"notto/pkg/requestcontext"
)

// Snapshot is the operator's working copy: the identity sets grouped by
// status plus the version token every staged change is relative to.
type Snapshot struct {
	Version    string              `json:"version"`
	Pending    []identity.Identity `json:"pending"`
	Registered []identity.Identity `json:"registered"`
	Rejected   []identity.Identity `json:"rejected"`
}

// CommitResult reports an applied ChangeSet.
type CommitResult struct {
	Applied    int      `json:"applied"`
	Generated  int      `json:"generated"`
	Fallbacks  int      `json:"fallbacks"`
	Skipped    []string `json:"skipped,omitempty"`
	NewVersion string   `json:"new_version"`
}

// Engine resolves staged ChangeSets into identity writes and applies them as
// one optimistic commit. Names approved without fixed numbers get them
// generated at commit time; generator misses fall back to local random sets
// so an operator's commit never hangs on the model.
type Engine struct {
	store     storage.Store
	generator generation.Generator
	logger    *slog.Logger
	batchSize int
}

func NewEngine(store storage.Store, generator generation.Generator, logger *slog.Logger, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 15
	}
	return &Engine{store: store, generator: generator, logger: logger, batchSize: batchSize}
}

// Snapshot loads the current identity sets and the version token to stage
// against.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	version, err := e.store.Version(ctx)
	if err != nil {
		return Snapshot{}, dErrors.Wrap(err, dErrors.CodeInternal, "read version")
	}

	snap := Snapshot{Version: version}
	for _, group := range []struct {
		status identity.Status
		dest   *[]identity.Identity
	}{
		{identity.StatusPending, &snap.Pending},
		{identity.StatusActive, &snap.Registered},
		{identity.StatusRejected, &snap.Rejected},
	} {
		ids, err := e.store.ListIdentitiesByStatus(ctx, group.status)
		if err != nil {
			return Snapshot{}, dErrors.Wrap(err, dErrors.CodeInternal, "list identities")
		}
		*group.dest = ids
	}
	return snap, nil
}

// Commit resolves the ChangeSet against the current identities and applies
// every resulting write atomically. When the store has moved past
// baseVersion the commit fails with COMMIT_CONFLICT and nothing is written;
// the caller keeps the staged set, re-snapshots, and retries.
func (e *Engine) Commit(ctx context.Context, baseVersion string, cs ChangeSet) (CommitResult, error) {
	if cs.IsEmpty() {
		return CommitResult{}, dErrors.New(dErrors.CodeBadRequest, "no changes staged")
	}
	if !cs.Consistent() {
		return CommitResult{}, dErrors.New(dErrors.CodeInvariantViolation,
			"a name appears in more than one operation list")
	}

	all, err := e.store.ListIdentities(ctx)
	if err != nil {
		return CommitResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list identities")
	}
	byName := make(map[string]identity.Identity, len(all))
	for _, id := range all {
		byName[id.Name] = id
	}

	now := requestcontext.Now(ctx)
	var result CommitResult
	var writes []identity.Identity

	stage := func(id identity.Identity) {
		byName[id.Name] = id
		writes = append(writes, id)
		result.Applied++
	}
	skip := func(name, why string) {
		result.Skipped = append(result.Skipped, name)
		e.logger.Warn("staged change skipped", "name", name, "reason", why)
	}

	// Activations first so number generation covers approvals and moves in
	// one pass.
	var toActivate []identity.Identity
	for _, name := range cs.Approve {
		id, ok := byName[name]
		if !ok {
			skip(name, "unknown name")
			continue
		}
		toActivate = append(toActivate, id)
	}
	for _, name := range cs.MoveToRegistered {
		id, ok := byName[name]
		if !ok {
			skip(name, "unknown name")
			continue
		}
		toActivate = append(toActivate, id)
	}

	sets, generated, fallbacks := e.ensureNumbers(ctx, toActivate)
	result.Generated = generated
	result.Fallbacks = fallbacks
	for _, id := range toActivate {
		id.Activate(sets[id.Name], now)
		stage(id)
	}

	for _, r := range cs.Reject {
		id, ok := byName[r.Name]
		if !ok {
			skip(r.Name, "unknown name")
			continue
		}
		id.Reject(r.Reason, now)
		stage(id)
	}
	for _, r := range cs.MoveToRejected {
		id, ok := byName[r.Name]
		if !ok {
			skip(r.Name, "unknown name")
			continue
		}
		id.Reject(r.Reason, now)
		stage(id)
	}

	for _, name := range cs.AddRequests {
		if _, exists := byName[name]; exists {
			skip(name, "name already registered")
			continue
		}
		stage(identity.NewIdentity(name, now))
	}

	for _, name := range cs.Deletes() {
		id, ok := byName[name]
		if !ok {
			skip(name, "unknown name")
			continue
		}
		id.Delete(now)
		stage(id)
	}

	if len(writes) == 0 {
		return CommitResult{}, dErrors.New(dErrors.CodeBadRequest,
			"no staged change matched a known name")
	}

	if err := e.store.ApplyChanges(ctx, baseVersion, writes); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return CommitResult{}, dErrors.New(dErrors.CodeCommitConflict,
				"the data changed since the snapshot was taken")
		}
		return CommitResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "apply changes")
	}

	version, err := e.store.Version(ctx)
	if err != nil {
		return CommitResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "read version")
	}
	result.NewVersion = version

	e.logger.Info("changes committed",
		"applied", result.Applied, "generated", result.Generated,
		"fallbacks", result.Fallbacks, "skipped", len(result.Skipped))
	return result, nil
}

// ensureNumbers returns a fixed set for every identity being activated.
// Existing numbers are kept. The rest go through the generator in batches
// when a fixed prompt is active; any name still missing afterwards gets a
// local random set so the commit always completes.
func (e *Engine) ensureNumbers(ctx context.Context, ids []identity.Identity) (sets map[string][]int, generated, fallbacks int) {
	sets = make(map[string][]int, len(ids))
	var missing []string
	for _, id := range ids {
		if len(id.FixedNumbers) == numbers.SetSize {
			sets[id.Name] = id.FixedNumbers
			continue
		}
		missing = append(missing, id.Name)
	}
	if len(missing) == 0 {
		return sets, 0, 0
	}

	tpl := ""
	if p, err := e.store.ActivePrompt(ctx, prompt.TypeFixed); err == nil {
		tpl = p.Content
	}

	if tpl != "" {
		for start := 0; start < len(missing); start += e.batchSize {
			end := min(start+e.batchSize, len(missing))
			batch := missing[start:end]
			assignments, err := e.generator.Generate(ctx, tpl, batch)
			if err != nil {
				e.logger.Warn("generator error during commit", "names", len(batch), "error", err)
				continue
			}
			for _, a := range assignments {
				sets[a.Name] = a.Numbers
				generated++
			}
		}
	}

	for _, name := range missing {
		if _, ok := sets[name]; ok {
			continue
		}
		sets[name] = numbers.Random()
		fallbacks++
	}
	return sets, generated, fallbacks
}
