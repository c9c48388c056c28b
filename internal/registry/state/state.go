// Package state folds the ordered event stream into the canonical
// registry state: artifacts, versions and stage assignments. The fold
// never fails; suspect events are kept in history with conflict or
// orphan markers instead.
package state

import (
	"sort"
	"time"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/index"
)

// Record is an event plus the markers the assembler attaches to it.
type Record struct {
	event.Event
	// Conflict marks an event that collides with earlier state, e.g. a
	// registration of an already-taken version.
	Conflict bool `json:"conflict,omitempty"`
	// Orphan marks an event that references state the registry cannot
	// resolve, e.g. a deregistration of an unknown version.
	Orphan bool `json:"orphan,omitempty"`
}

// Version is the assembled state of one artifact version.
type Version struct {
	Artifact    string    `json:"artifact"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	CreatedAt   time.Time `json:"created_at"`
	Author      string    `json:"author,omitempty"`
	AuthorEmail string    `json:"author_email,omitempty"`
	Message     string    `json:"message,omitempty"`

	// Registered is true while the version has an effective
	// registration; a later deregistration clears it.
	Registered   bool `json:"registered"`
	Deregistered bool `json:"deregistered"`

	// Discovered versions were never registered explicitly; they exist
	// because a stage tag pointed at a commit with no known version.
	Discovered bool `json:"discovered,omitempty"`

	// Stages currently pointing at this version (computed view).
	Stages []string `json:"stages,omitempty"`

	// History holds every event touching this version, in display order.
	History []Record `json:"history,omitempty"`
}

// StageRef is one holder of a stage: the version it points at and the
// event that established it.
type StageRef struct {
	Stage   string `json:"stage"`
	Version string `json:"version"`
	Record  Record `json:"record"`
}

// Artifact is the assembled state of one artifact.
type Artifact struct {
	Name       string    `json:"name"`
	Deprecated bool      `json:"deprecated"`
	Versions   []*Version `json:"versions"`

	// CurrentStages maps stage name to its holders, primary first.
	// With the default single-holder policy each list has one entry.
	CurrentStages map[string][]StageRef `json:"current_stages"`

	// Meta is the freshest index metadata for the artifact, nil when
	// the artifact only exists as tags.
	Meta *index.Artifact `json:"meta,omitempty"`

	records   []Record
	byVersion map[string]*Version
	simple    map[string]bool

	// perStage tracks baseline stage currency: the winning event per
	// stage across all versions.
	perStage map[string]*stageState
	// perPair tracks the last event per (stage, version), feeding the
	// multi-version-per-stage view.
	perPair map[string]map[string]Record
}

type stageState struct {
	rec     Record
	version string
}

// Registry is the canonical queryable state.
type Registry struct {
	Artifacts map[string]*Artifact

	cfg    config.Config
	simple map[string]bool
}

// Config returns the configuration the state was assembled under.
func (r *Registry) Config() config.Config { return r.cfg }

// Names returns artifact names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Artifacts))
	for name := range r.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Find returns the artifact by name, or nil.
func (r *Registry) Find(name string) *Artifact {
	return r.Artifacts[name]
}

// SimplePair reports whether the (artifact, stage) pair was touched by
// a simple-form tag, which disables its history.
func (r *Registry) SimplePair(artifact, stage string) bool {
	return r.simple[artifact+"#"+stage]
}

// Stages returns the unique stage names in use, sorted.
func (r *Registry) Stages() []string {
	seen := map[string]bool{}
	for _, art := range r.Artifacts {
		for stage := range art.CurrentStages {
			seen[stage] = true
		}
	}
	stages := make([]string, 0, len(seen))
	for s := range seen {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	return stages
}

// FindVersion returns the assembled version by name, or nil.
func (a *Artifact) FindVersion(v string) *Version {
	return a.byVersion[v]
}

// Records returns every event touching the artifact in display order,
// without simple-form degradation. Most callers want query.History.
func (a *Artifact) Records() []Record {
	return a.records
}

// SimpleStages returns the stages of this artifact that were touched by
// simple-form tags.
func (a *Artifact) SimpleStages() map[string]bool {
	return a.simple
}

// RegisteredVersions returns versions that are currently registered
// (explicitly, not deregistered), in assembly order.
func (a *Artifact) RegisteredVersions() []*Version {
	var out []*Version
	for _, v := range a.Versions {
		if v.Registered {
			out = append(out, v)
		}
	}
	return out
}
