package state

import (
	"sort"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/version"
)

// Assemble folds a collected stream into the registry state. It is a
// pure function of the stream and the configuration: two runs over the
// same repository state produce identical output.
func Assemble(stream *collector.Stream, cfg config.Config) *Registry {
	reg := &Registry{
		Artifacts: map[string]*Artifact{},
		cfg:       cfg,
		simple:    stream.Simple,
	}

	for _, e := range stream.Events {
		art := reg.artifact(e.Artifact)
		rec := Record{Event: e}

		switch e.Kind {
		case event.KindCommit, event.KindAnnotation:
			// Synthetic index observation: the artifact exists, nothing
			// else changes.
		case event.KindRegistration:
			rec = art.applyRegistration(rec)
		case event.KindDeregistration:
			rec = art.applyDeregistration(rec)
		case event.KindAssignment, event.KindUnassignment:
			rec = art.applyStageEvent(rec)
		case event.KindDeprecation:
			art.Deprecated = true
		}

		art.records = append(art.records, rec)
		if v := art.byVersion[rec.Version]; v != nil && rec.Version != "" {
			v.History = append(v.History, rec)
		}
	}

	for name, meta := range stream.Meta {
		art := reg.artifact(name)
		m := meta
		art.Meta = &m
	}

	for _, art := range reg.Artifacts {
		art.finalize(cfg)
	}
	log.Debug(log.CatState, "Assembled registry state",
		"artifacts", len(reg.Artifacts), "events", len(stream.Events))
	return reg
}

func (r *Registry) artifact(name string) *Artifact {
	if art, ok := r.Artifacts[name]; ok {
		return art
	}
	art := &Artifact{
		Name:          name,
		CurrentStages: map[string][]StageRef{},
		byVersion:     map[string]*Version{},
		simple:        map[string]bool{},
		perStage:      map[string]*stageState{},
		perPair:       map[string]map[string]Record{},
	}
	for pair := range r.simple {
		if stage, ok := cutPair(pair, name); ok {
			art.simple[stage] = true
		}
	}
	r.Artifacts[name] = art
	return art
}

func cutPair(pair, artifact string) (string, bool) {
	prefix := artifact + "#"
	if len(pair) > len(prefix) && pair[:len(prefix)] == prefix {
		return pair[len(prefix):], true
	}
	return "", false
}

func (a *Artifact) applyRegistration(rec Record) Record {
	if existing := a.byVersion[rec.Version]; existing != nil && existing.Registered {
		// The earlier registration wins; the later one stays visible in
		// history as a conflict.
		log.Warn(log.CatState, "Conflicting registration kept in history",
			"artifact", a.Name, "version", rec.Version, "tag", rec.Ref)
		rec.Conflict = true
		return rec
	}
	v := a.version(rec.Version, rec.Commit)
	v.Registered = true
	v.Deregistered = false
	v.Discovered = false
	v.Commit = rec.Commit
	v.CreatedAt = rec.CreatedAt
	v.Author = rec.Author
	v.AuthorEmail = rec.AuthorEmail
	v.Message = rec.Message
	// A registration lifts an artifact-wide deprecation.
	a.Deprecated = false
	return rec
}

func (a *Artifact) applyDeregistration(rec Record) Record {
	v := a.byVersion[rec.Version]
	if v == nil || !v.Registered {
		rec.Orphan = true
		return rec
	}
	v.Registered = false
	v.Deregistered = true
	return rec
}

func (a *Artifact) applyStageEvent(rec Record) Record {
	v := a.resolveVersionAt(rec)
	if v == nil {
		// A stage tag pointing at a commit with no known version still
		// tracks currency against a discovered placeholder version.
		rec.Orphan = true
		v = a.version(shortSha(rec.Commit), rec.Commit)
		v.Discovered = true
		v.CreatedAt = rec.CreatedAt
	}
	rec.Version = v.Version

	cur, ok := a.perStage[rec.Stage]
	if !ok || wins(rec, cur.rec) {
		a.perStage[rec.Stage] = &stageState{rec: rec, version: v.Version}
	}

	pairs := a.perPair[rec.Stage]
	if pairs == nil {
		pairs = map[string]Record{}
		a.perPair[rec.Stage] = pairs
	}
	if prev, ok := pairs[v.Version]; !ok || wins(rec, prev) {
		pairs[v.Version] = rec
	}

	if rec.Kind == event.KindAssignment {
		// An assignment lifts an artifact-wide deprecation.
		a.Deprecated = false
	}
	return rec
}

// wins decides stage currency between two events on the same key:
// greater seq wins; simple-form events fall back to display order.
func wins(next, prev Record) bool {
	if next.Seq != event.SeqAbsent && prev.Seq != event.SeqAbsent {
		return next.Seq >= prev.Seq
	}
	// Events arrive in display order, so the later one wins.
	return true
}

// resolveVersionAt maps a stage event to the version it targets: the
// version registered at the tag's commit, else the latest version
// created at or before the tag.
func (a *Artifact) resolveVersionAt(rec Record) *Version {
	var match *Version
	for _, v := range a.Versions {
		if v.Commit == rec.Commit && !v.Deregistered {
			match = v
		}
	}
	if match != nil {
		return match
	}
	for _, v := range a.Versions {
		if v.Registered && !v.CreatedAt.After(rec.CreatedAt) {
			match = v
		}
	}
	return match
}

func (a *Artifact) version(name, commit string) *Version {
	if v, ok := a.byVersion[name]; ok {
		return v
	}
	v := &Version{
		Artifact: a.Name,
		Version:  name,
		Commit:   commit,
	}
	a.Versions = append(a.Versions, v)
	a.byVersion[name] = v
	return v
}

// finalize computes the stage views after the fold: baseline currency,
// the optional multi-version-per-stage expansion, and the kanban
// constraint.
func (a *Artifact) finalize(cfg config.Config) {
	multi := cfg.VersionsPerStage != 1

	for stage, st := range a.perStage {
		if !multi {
			if st.rec.Kind == event.KindAssignment {
				a.CurrentStages[stage] = []StageRef{{Stage: stage, Version: st.version, Record: st.rec}}
			}
			continue
		}
		refs := a.stageHolders(stage, cfg)
		if len(refs) > 0 {
			a.CurrentStages[stage] = refs
		}
	}

	if cfg.Kanban {
		a.applyKanban()
	}

	for stage, refs := range a.CurrentStages {
		for _, ref := range refs {
			if v := a.byVersion[ref.Version]; v != nil {
				v.Stages = append(v.Stages, stage)
			}
		}
	}
	for _, v := range a.Versions {
		sortStrings(v.Stages)
	}
}

// stageHolders returns every version whose last event on the stage is
// an assignment, ordered by the configured sort, newest first, capped
// at versions_per_stage.
func (a *Artifact) stageHolders(stage string, cfg config.Config) []StageRef {
	pairs := a.perPair[stage]
	refs := make([]StageRef, 0, len(pairs))
	for ver, rec := range pairs {
		if rec.Kind != event.KindAssignment {
			continue
		}
		refs = append(refs, StageRef{Stage: stage, Version: ver, Record: rec})
	}
	if cfg.SortOrder() == config.SortBySemVer {
		conv := cfg.Convention()
		sortRefs(refs, func(x, y StageRef) bool {
			if version.Valid(x.Version, conv) && version.Valid(y.Version, conv) {
				return version.Compare(x.Version, y.Version, conv) > 0
			}
			return x.Version > y.Version
		})
	} else {
		sortRefs(refs, func(x, y StageRef) bool {
			if y.Record.Before(x.Record.Event) {
				return true
			}
			if x.Record.Before(y.Record.Event) {
				return false
			}
			return x.Version < y.Version
		})
	}
	if limit := cfg.VersionsPerStage; limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}

// applyKanban keeps, per version, only the most recently assigned stage.
func (a *Artifact) applyKanban() {
	latest := map[string]StageRef{} // version → winning stage ref
	for _, refs := range a.CurrentStages {
		for _, ref := range refs {
			cur, ok := latest[ref.Version]
			if !ok || wins(ref.Record, cur.Record) {
				latest[ref.Version] = ref
			}
		}
	}
	for stage, refs := range a.CurrentStages {
		kept := refs[:0]
		for _, ref := range refs {
			if latest[ref.Version].Stage == stage {
				kept = append(kept, ref)
			}
		}
		if len(kept) == 0 {
			delete(a.CurrentStages, stage)
		} else {
			a.CurrentStages[stage] = kept
		}
	}
}

func sortStrings(s []string) {
	sort.Strings(s)
}

func sortRefs(refs []StageRef, less func(x, y StageRef) bool) {
	sort.SliceStable(refs, func(i, j int) bool { return less(refs[i], refs[j]) })
}

func shortSha(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
