// Package query answers read-side questions over an assembled registry
// state. Every function here is a pure function of the state; nothing
// mutates.
package query

import (
	"context"
	"sort"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/registry/codec"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/index"
	"github.com/zjrosen/gto/internal/registry/state"
	"github.com/zjrosen/gto/internal/registry/version"
)

// Row is one artifact line of the registry overview.
type Row struct {
	Name       string            `json:"name"`
	Type       string            `json:"type,omitempty"`
	Latest     string            `json:"latest,omitempty"`
	Deprecated bool              `json:"deprecated,omitempty"`
	Stages     map[string]string `json:"stages,omitempty"`
}

// VersionRow is one version line of a per-artifact view.
type VersionRow struct {
	Version      string   `json:"version"`
	Commit       string   `json:"commit"`
	CreatedAt    string   `json:"created_at"`
	Author       string   `json:"author,omitempty"`
	Registered   bool     `json:"registered"`
	Deregistered bool     `json:"deregistered,omitempty"`
	Discovered   bool     `json:"discovered,omitempty"`
	Stages       []string `json:"stages,omitempty"`
}

// Show returns the per-artifact overview: latest non-deprecated version
// and the current version per stage.
func Show(ctx context.Context, reg *state.Registry) ([]Row, error) {
	var rows []Row
	for _, name := range reg.Names() {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.KindCancelled, err, "show cancelled")
		}
		art := reg.Find(name)
		row := Row{
			Name:       name,
			Deprecated: art.Deprecated,
			Stages:     map[string]string{},
		}
		if art.Meta != nil {
			row.Type = art.Meta.Type
		}
		if latest := latestVersion(art, reg.Config()); latest != nil {
			row.Latest = latest.Version
		}
		for stage, refs := range art.CurrentStages {
			if len(refs) > 0 {
				row.Stages[stage] = refs[0].Version
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ShowArtifact returns the per-version view of one artifact. With all
// set, deregistered and discovered versions are included.
func ShowArtifact(reg *state.Registry, name string, all bool) ([]VersionRow, error) {
	art := reg.Find(name)
	if art == nil {
		return nil, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
	}
	var rows []VersionRow
	for _, v := range art.Versions {
		if !all && (v.Deregistered || v.Discovered) {
			continue
		}
		rows = append(rows, VersionRow{
			Version:      v.Version,
			Commit:       v.Commit,
			CreatedAt:    v.CreatedAt.Format("2006-01-02 15:04:05"),
			Author:       v.Author,
			Registered:   v.Registered,
			Deregistered: v.Deregistered,
			Discovered:   v.Discovered,
			Stages:       v.Stages,
		})
	}
	return rows, nil
}

// History returns the event list in display order. For any (artifact,
// stage) pair touched by a simple-form tag the assignment rows are
// replaced by a single conflict marker entry: without sequence numbers
// their relative history cannot be reconstructed.
func History(ctx context.Context, reg *state.Registry, name string) ([]state.Record, error) {
	artifacts := reg.Names()
	if name != "" {
		if reg.Find(name) == nil {
			return nil, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
		}
		artifacts = []string{name}
	}

	var out []state.Record
	for _, artName := range artifacts {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.KindCancelled, err, "history cancelled")
		}
		art := reg.Find(artName)
		markerEmitted := map[string]bool{}
		for _, rec := range art.Records() {
			stageEvent := rec.Kind == event.KindAssignment || rec.Kind == event.KindUnassignment
			if stageEvent && art.SimpleStages()[rec.Stage] {
				if markerEmitted[rec.Stage] {
					continue
				}
				markerEmitted[rec.Stage] = true
				out = append(out, state.Record{
					Event: event.Event{
						Kind:     rec.Kind,
						Artifact: artName,
						Stage:    rec.Stage,
						Seq:      event.SeqAbsent,
						Ref:      rec.Ref,
					},
					Conflict: true,
				})
				continue
			}
			out = append(out, rec)
		}
	}
	// Merge across artifacts back into display order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Before(out[j].Event)
	})
	return out, nil
}

// Latest returns the greatest registered, non-deregistered version of
// the artifact under the configured sort.
func Latest(reg *state.Registry, name string) (*state.Version, error) {
	art := reg.Find(name)
	if art == nil {
		return nil, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
	}
	latest := latestVersion(art, reg.Config())
	if latest == nil {
		return nil, errs.New(errs.KindNotFound, "no registered versions found for %q", name).WithInput(name)
	}
	return latest, nil
}

func latestVersion(art *state.Artifact, cfg config.Config) *state.Version {
	candidates := art.RegisteredVersions()
	if len(candidates) == 0 {
		return nil
	}
	if cfg.SortOrder() == config.SortBySemVer {
		conv := cfg.Convention()
		names := make([]string, len(candidates))
		for i, v := range candidates {
			names[i] = v.Version
		}
		if best := version.Greatest(names, conv, false); best != "" {
			return art.FindVersion(best)
		}
	}
	// by_time: the fold order is display order, so the last registered
	// candidate is the newest.
	best := candidates[0]
	for _, v := range candidates[1:] {
		if !v.CreatedAt.Before(best.CreatedAt) {
			best = v
		}
	}
	return best
}

// Which returns the versions currently holding the stage, primary
// first. The slice is empty when the stage is not assigned.
func Which(reg *state.Registry, name, stage string) ([]state.StageRef, error) {
	art := reg.Find(name)
	if art == nil {
		return nil, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
	}
	return art.CurrentStages[stage], nil
}

// Describe returns the latest index metadata for the artifact.
func Describe(reg *state.Registry, name string) (*index.Artifact, error) {
	art := reg.Find(name)
	if art == nil {
		return nil, errs.New(errs.KindNotFound, "artifact %q not found in the registry", name).WithInput(name)
	}
	if art.Meta == nil {
		return nil, errs.New(errs.KindNotFound, "artifact %q has no index entry", name).WithInput(name)
	}
	return art.Meta, nil
}

// CheckRef classifies a ref: when it is a registry tag, the matching
// assembled record is returned with its markers.
func CheckRef(reg *state.Registry, ref string) (*state.Record, error) {
	parsed := codec.Parse(ref, reg.Config().Convention())
	if parsed == nil {
		return nil, errs.New(errs.KindNotFound, "ref %q is not a registry tag", ref).WithInput(ref)
	}
	art := reg.Find(parsed.Artifact)
	if art == nil {
		return nil, errs.New(errs.KindNotFound, "tag %q references unknown artifact %q", ref, parsed.Artifact).WithInput(ref)
	}
	for _, rec := range art.Records() {
		if rec.Ref == ref {
			return &rec, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "tag %q not found in the repository", ref).WithInput(ref)
}
