// Package registry ties the engine together: it owns the git adapter,
// index reader, collector and mutator for one repository and exposes
// assemble/apply entry points to the boundary layers. No state is
// shared between instances; opening the same repository twice yields
// two independent engines.
package registry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/git"
	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/index"
	"github.com/zjrosen/gto/internal/registry/mutate"
	"github.com/zjrosen/gto/internal/registry/state"
)

// Registry is the engine for a single repository.
type Registry struct {
	exec      git.Executor
	cfg       config.Config
	reader    *index.Reader
	collector *collector.Collector
	mutator   *mutate.Mutator
	tracer    trace.Tracer
}

// Open creates an engine over the repository at path.
func Open(path string, cfg config.Config) (*Registry, error) {
	exec := git.NewRealExecutor(path)
	if !exec.IsGitRepo() {
		return nil, errs.New(errs.KindRepository, "no git repository found at %q", path).WithInput(path)
	}
	return NewWithExecutor(exec, cfg), nil
}

// NewWithExecutor creates an engine over a supplied git adapter; tests
// hand in an in-memory one.
func NewWithExecutor(exec git.Executor, cfg config.Config) *Registry {
	reader := index.NewReader(exec, cfg.IndexPath())
	return &Registry{
		exec:      exec,
		cfg:       cfg,
		reader:    reader,
		collector: collector.New(exec, reader, cfg.Convention()),
		mutator:   mutate.New(exec, cfg),
		tracer:    otel.Tracer("gto"),
	}
}

// Config returns the engine configuration.
func (r *Registry) Config() config.Config { return r.cfg }

// Mutator returns the mutation planner.
func (r *Registry) Mutator() *mutate.Mutator { return r.mutator }

// Executor returns the underlying git adapter.
func (r *Registry) Executor() git.Executor { return r.exec }

// IndexWriter returns a writer for the working-tree index file.
func (r *Registry) IndexWriter() (*index.Writer, error) {
	root, err := r.exec.RepoRoot()
	if err != nil {
		return nil, errs.Wrap(errs.KindRepository, err, "locating repository root")
	}
	return index.NewWriter(root, r.cfg.IndexPath()), nil
}

// Assemble collects events for the scope and folds them into a fresh
// registry state. There is no incremental path: reads after writes see
// the writes only through a new Assemble call.
func (r *Registry) Assemble(ctx context.Context, scope collector.Scope) (*state.Registry, error) {
	ctx, span := r.tracer.Start(ctx, "registry.assemble")
	defer span.End()

	stream, err := r.collector.Collect(ctx, scope)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.KindCancelled, err, "collection cancelled")
		}
		return nil, err
	}
	reg := state.Assemble(stream, r.cfg)
	span.SetAttributes(
		attribute.Int("gto.events", len(stream.Events)),
		attribute.Int("gto.artifacts", len(reg.Artifacts)),
	)
	return reg, nil
}

// Apply executes a plan: tag deletions first, then creations in plan
// order. Cancellation is checked before every write. If a creation
// fails partway, the tags already created by this call are rolled back
// so no partial plan is left behind.
func (r *Registry) Apply(ctx context.Context, plan mutate.Plan) error {
	ctx, span := r.tracer.Start(ctx, "registry.apply")
	defer span.End()

	for _, name := range plan.Deletes {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.KindCancelled, err, "apply cancelled")
		}
		if err := r.exec.DeleteTag(ctx, name); err != nil {
			return errs.Wrap(errs.KindRepository, err, "deleting tag %q", name).WithInput(name)
		}
		log.Info(log.CatMutate, "Deleted tag", "tag", name)
	}

	var created []string
	for _, w := range plan.Creates {
		if err := ctx.Err(); err != nil {
			r.rollback(created)
			return errs.Wrap(errs.KindCancelled, err, "apply cancelled")
		}
		if err := r.exec.CreateTag(ctx, w.Name, w.Target, w.Message); err != nil {
			r.rollback(created)
			if errors.Is(err, git.ErrTagExists) {
				return errs.Wrap(errs.KindConflict, err, "tag %q already exists", w.Name).
					WithInput(w.Name).WithExisting(w.Name)
			}
			return errs.Wrap(errs.KindRepository, err, "creating tag %q", w.Name).WithInput(w.Name)
		}
		created = append(created, w.Name)
		log.Info(log.CatMutate, "Created tag", "tag", w.Name, "target", w.Target)
	}
	return nil
}

// rollback removes tags created earlier in a failed plan. Failures here
// are logged, not returned: the original error matters more.
func (r *Registry) rollback(created []string) {
	for i := len(created) - 1; i >= 0; i-- {
		if err := r.exec.DeleteTag(context.Background(), created[i]); err != nil {
			log.ErrorErr(log.CatMutate, "Rollback failed; tag left behind", err, "tag", created[i])
		}
	}
}
