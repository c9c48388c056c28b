// Package mutate validates requested registry actions against the
// assembled state and plans the tag writes or deletions that express
// them. Plans are returned to the caller; actually touching refs is the
// git layer's job, which keeps the core free of partial writes.
package mutate

import (
	"context"
	"fmt"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/git"
	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry/codec"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/state"
	"github.com/zjrosen/gto/internal/registry/version"
)

// TagWrite is one annotated tag to create.
type TagWrite struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Target  string `json:"target"`
}

// Plan is the outcome of a mutation: tags to create, in order, or tags
// to delete. Multi-tag plans are atomic from the registry's viewpoint;
// a consumer that fails mid-plan must roll back what it created.
type Plan struct {
	Creates []TagWrite `json:"creates,omitempty"`
	Deletes []string   `json:"deletes,omitempty"`
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Deletes) == 0
}

// Mutator plans registry mutations.
type Mutator struct {
	exec git.Executor
	cfg  config.Config
}

// New creates a Mutator.
func New(exec git.Executor, cfg config.Config) *Mutator {
	return &Mutator{exec: exec, cfg: cfg}
}

// RegisterOptions tunes Register.
type RegisterOptions struct {
	// Version pins the version string; empty computes the next one.
	Version string
	// Bump selects the semver part to increment when Version is empty.
	Bump version.Part
	// Force registers even while the artifact is deprecated.
	Force bool
}

// Register plans a version registration for the artifact at ref
// (default HEAD).
func (m *Mutator) Register(ctx context.Context, reg *state.Registry, name, ref string, opts RegisterOptions) (Plan, error) {
	if err := m.cfg.CheckName(name); err != nil {
		return Plan{}, err
	}
	commit, err := m.resolve(ctx, ref)
	if err != nil {
		return Plan{}, err
	}

	art := reg.Find(name)
	if art != nil && art.Deprecated && !opts.Force {
		return Plan{}, errs.New(errs.KindPrecondition,
			"artifact %q is deprecated; pass --force to register a new version", name).WithInput(name)
	}

	conv := m.cfg.Convention()
	ver := opts.Version
	if ver == "" {
		ver, err = version.Bump(m.greatestEver(art), opts.Bump, conv)
		if err != nil {
			return Plan{}, err
		}
	} else if !version.Valid(ver, conv) {
		return Plan{}, errs.New(errs.KindValidation, "invalid %s version %q", conv, ver).WithInput(ver)
	}

	if art != nil {
		if existing := art.FindVersion(ver); existing != nil && !existing.Discovered {
			return Plan{}, errs.New(errs.KindPrecondition,
				"version %q of %q was already used; choose another name even if it was deregistered", ver, name).
				WithInput(ver).WithExisting(registrationTag(art, ver))
		}
	}

	tag, err := codec.Format(event.Event{Kind: event.KindRegistration, Artifact: name, Version: ver}, conv)
	if err != nil {
		return Plan{}, err
	}
	log.Info(log.CatMutate, "Planning registration", "artifact", name, "version", ver, "commit", commit.Hash)
	return Plan{Creates: []TagWrite{{
		Name:    tag,
		Message: fmt.Sprintf("Registering artifact %s version %s", name, ver),
		Target:  commit.Hash,
	}}}, nil
}

// Deregister plans a version deregistration, or with remove set, the
// deletion of every tag touching the version.
func (m *Mutator) Deregister(ctx context.Context, reg *state.Registry, name, ver string, remove bool) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, errs.Wrap(errs.KindCancelled, err, "deregister cancelled")
	}
	art := reg.Find(name)
	if art == nil {
		return Plan{}, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
	}
	v := art.FindVersion(ver)
	if v == nil || v.Discovered {
		return Plan{}, errs.New(errs.KindNotFound, "version %q of %q not found", ver, name).WithInput(ver)
	}
	if !v.Registered {
		return Plan{}, errs.New(errs.KindPrecondition, "version %q of %q is not registered", ver, name).WithInput(ver)
	}

	if remove {
		return Plan{Deletes: m.tagsTouchingVersion(art, ver)}, nil
	}

	tag, err := codec.Format(event.Event{Kind: event.KindDeregistration, Artifact: name, Version: ver}, m.cfg.Convention())
	if err != nil {
		return Plan{}, err
	}
	log.Info(log.CatMutate, "Planning deregistration", "artifact", name, "version", ver)
	return Plan{Creates: []TagWrite{{
		Name:    tag,
		Message: fmt.Sprintf("Deregistering artifact %s version %s", name, ver),
		Target:  v.Commit,
	}}}, nil
}

// AssignOptions tunes Assign.
type AssignOptions struct {
	// Version selects an existing version. Mutually exclusive with Ref.
	Version string
	// Ref selects a commit; a version is registered there first when
	// none exists. Mutually exclusive with Version.
	Ref string
	// Bump selects the semver part for an implicit registration.
	Bump version.Part
	// Force assigns even while the artifact is deprecated.
	Force bool
}

// Assign plans a stage assignment. When the target commit carries no
// registered version, a registration is planned first and the two tags
// form one atomic plan.
func (m *Mutator) Assign(ctx context.Context, reg *state.Registry, name, stage string, opts AssignOptions) (Plan, error) {
	if err := m.cfg.CheckName(name); err != nil {
		return Plan{}, err
	}
	if err := m.cfg.CheckStage(stage); err != nil {
		return Plan{}, err
	}
	if (opts.Version == "") == (opts.Ref == "") {
		return Plan{}, errs.New(errs.KindValidation, "exactly one of --version or --ref must be given")
	}

	art := reg.Find(name)
	if art != nil && art.Deprecated && !opts.Force {
		return Plan{}, errs.New(errs.KindPrecondition,
			"artifact %q is deprecated; pass --force to assign a stage", name).WithInput(name)
	}

	var plan Plan
	var target string
	switch {
	case opts.Version != "":
		if art == nil {
			return Plan{}, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
		}
		v := art.FindVersion(opts.Version)
		if v == nil || !v.Registered {
			return Plan{}, errs.New(errs.KindNotFound, "version %q of %q is not registered", opts.Version, name).WithInput(opts.Version)
		}
		target = v.Commit
	default:
		commit, err := m.resolve(ctx, opts.Ref)
		if err != nil {
			return Plan{}, err
		}
		target = commit.Hash
		if art == nil || !hasRegisteredVersionAt(art, commit.Hash) {
			// No version at the commit: register one as part of the plan.
			regPlan, err := m.Register(ctx, reg, name, opts.Ref, RegisterOptions{Bump: opts.Bump, Force: opts.Force})
			if err != nil {
				return Plan{}, err
			}
			plan.Creates = append(plan.Creates, regPlan.Creates...)
		}
	}

	seq := nextStageSeq(art)
	tag, err := codec.Format(event.Event{
		Kind: event.KindAssignment, Artifact: name, Stage: stage, Seq: seq,
	}, m.cfg.Convention())
	if err != nil {
		return Plan{}, err
	}
	log.Info(log.CatMutate, "Planning assignment", "artifact", name, "stage", stage, "seq", seq)
	plan.Creates = append(plan.Creates, TagWrite{
		Name:    tag,
		Message: fmt.Sprintf("Assigning stage %s to artifact %s", stage, name),
		Target:  target,
	})
	return plan, nil
}

// Unassign plans a stage unassignment, or with remove set, the deletion
// of every stage tag for the pair.
func (m *Mutator) Unassign(ctx context.Context, reg *state.Registry, name, stage string, remove bool) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, errs.Wrap(errs.KindCancelled, err, "unassign cancelled")
	}
	art := reg.Find(name)
	if art == nil {
		return Plan{}, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
	}
	refs := art.CurrentStages[stage]
	if len(refs) == 0 {
		return Plan{}, errs.New(errs.KindPrecondition, "stage %q is not currently assigned for %q", stage, name).WithInput(stage)
	}

	if remove {
		return Plan{Deletes: m.tagsTouchingStage(art, stage)}, nil
	}

	seq := nextStageSeq(art)
	tag, err := codec.Format(event.Event{
		Kind: event.KindUnassignment, Artifact: name, Stage: stage, Seq: seq,
	}, m.cfg.Convention())
	if err != nil {
		return Plan{}, err
	}
	log.Info(log.CatMutate, "Planning unassignment", "artifact", name, "stage", stage, "seq", seq)
	return Plan{Creates: []TagWrite{{
		Name:    tag,
		Message: fmt.Sprintf("Unassigning stage %s from artifact %s", stage, name),
		Target:  refs[0].Record.Commit,
	}}}, nil
}

// Deprecate plans an artifact-level deprecation. Deprecating an already
// deprecated artifact plans nothing.
func (m *Mutator) Deprecate(ctx context.Context, reg *state.Registry, name string) (Plan, error) {
	if err := m.cfg.CheckName(name); err != nil {
		return Plan{}, err
	}
	art := reg.Find(name)
	if art == nil {
		return Plan{}, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
	}
	if art.Deprecated {
		return Plan{}, nil
	}

	commit, err := m.resolve(ctx, "")
	if err != nil {
		return Plan{}, err
	}

	// Re-deprecation after a reset needs a fresh tag name.
	seq := event.SeqAbsent
	if n := countDeprecations(art); n > 0 {
		seq = n + 1
	}
	tag, err := codec.Format(event.Event{Kind: event.KindDeprecation, Artifact: name, Seq: seq}, m.cfg.Convention())
	if err != nil {
		return Plan{}, err
	}
	log.Info(log.CatMutate, "Planning deprecation", "artifact", name)
	return Plan{Creates: []TagWrite{{
		Name:    tag,
		Message: fmt.Sprintf("Deprecating artifact %s", name),
		Target:  commit.Hash,
	}}}, nil
}

func (m *Mutator) resolve(ctx context.Context, ref string) (git.CommitInfo, error) {
	if ref == "" {
		ref = "HEAD"
	}
	commit, err := m.exec.ResolveCommit(ctx, ref)
	if err != nil {
		return git.CommitInfo{}, errs.Wrap(errs.KindNotFound, err, "ref %q not found in the repository", ref).WithInput(ref)
	}
	return commit, nil
}

// greatestEver returns the greatest version name ever used by the
// artifact, including deregistered ones, so bumps never reuse a name.
func (m *Mutator) greatestEver(art *state.Artifact) string {
	if art == nil {
		return ""
	}
	var names []string
	for _, v := range art.Versions {
		if !v.Discovered {
			names = append(names, v.Version)
		}
	}
	return version.Greatest(names, m.cfg.Convention(), true)
}

func hasRegisteredVersionAt(art *state.Artifact, commit string) bool {
	for _, v := range art.Versions {
		if v.Registered && v.Commit == commit {
			return true
		}
	}
	return false
}

// nextStageSeq continues the artifact-wide stage counter, keeping seq
// monotonic for every (artifact, stage) pair.
func nextStageSeq(art *state.Artifact) int {
	if art == nil {
		return 1
	}
	highest := 0
	for _, rec := range art.Records() {
		if rec.Kind != event.KindAssignment && rec.Kind != event.KindUnassignment {
			continue
		}
		if rec.Seq > highest {
			highest = rec.Seq
		}
	}
	return highest + 1
}

func countDeprecations(art *state.Artifact) int {
	n := 0
	for _, rec := range art.Records() {
		if rec.Kind == event.KindDeprecation {
			n++
		}
	}
	return n
}

func registrationTag(art *state.Artifact, ver string) string {
	for _, rec := range art.Records() {
		if rec.Kind == event.KindRegistration && rec.Version == ver {
			return rec.Ref
		}
	}
	return ""
}

// tagsTouchingVersion lists the registration tag plus every stage tag
// whose event resolved to the version.
func (m *Mutator) tagsTouchingVersion(art *state.Artifact, ver string) []string {
	var tags []string
	for _, rec := range art.Records() {
		if !rec.IsTag() || rec.Version != ver {
			continue
		}
		tags = append(tags, rec.Ref)
	}
	return tags
}

func (m *Mutator) tagsTouchingStage(art *state.Artifact, stage string) []string {
	var tags []string
	for _, rec := range art.Records() {
		if rec.Kind != event.KindAssignment && rec.Kind != event.KindUnassignment {
			continue
		}
		if rec.Stage == stage {
			tags = append(tags, rec.Ref)
		}
	}
	return tags
}
