// Package collector enumerates tag refs and commits and emits the
// time-ordered event stream the assembler folds.
package collector

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/gto/internal/git"
	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry/codec"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/index"
	"github.com/zjrosen/gto/internal/registry/version"
)

// ScopeKind selects which commits are scanned for index rows.
type ScopeKind int

const (
	// ScopeHead scans only the HEAD commit.
	ScopeHead ScopeKind = iota
	// ScopeBranches scans every commit reachable from a local branch.
	ScopeBranches
	// ScopeAll scans every commit in the repository.
	ScopeAll
	// ScopeCommits scans an explicit commit set.
	ScopeCommits
)

// Scope bounds the commit walk.
type Scope struct {
	Kind    ScopeKind
	Commits []string // used with ScopeCommits

	// IncludeWorkingTree additionally surfaces uncommitted index rows
	// as annotation events.
	IncludeWorkingTree bool
}

// Stream is the collector output: display-ordered events plus the
// derived lookups the assembler needs.
type Stream struct {
	Events []event.Event

	// Simple marks (artifact, stage) pairs touched by a simple-form
	// tag; history is degraded for these pairs.
	Simple map[string]bool

	// Meta is the index at HEAD (or working tree when requested),
	// the freshest metadata per artifact.
	Meta index.Index
}

// PairKey keys an (artifact, stage) pair in Stream.Simple.
func PairKey(artifact, stage string) string {
	return artifact + "#" + stage
}

// Collector walks refs and commits and produces Streams.
type Collector struct {
	exec   git.Executor
	reader *index.Reader
	conv   version.Convention
}

// New creates a Collector.
func New(exec git.Executor, reader *index.Reader, conv version.Convention) *Collector {
	return &Collector{exec: exec, reader: reader, conv: conv}
}

// Collect builds the event stream for the scope. The result is
// deterministic for a fixed repository state: events are sorted by
// (timestamp, seq, tag name) regardless of enumeration order.
func (c *Collector) Collect(ctx context.Context, scope Scope) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream := &Stream{Simple: map[string]bool{}, Meta: index.Index{}}

	tags, err := c.exec.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating tags: %w", err)
	}
	for _, tag := range tags {
		parsed := codec.Parse(tag.Name, c.conv)
		if parsed == nil {
			// Foreign tag: tolerated, not an error.
			continue
		}
		e := *parsed
		e.Commit = tag.Target
		e.Author = tag.TaggerName
		e.AuthorEmail = tag.TaggerEmail
		e.Message = tag.Message
		e.CreatedAt = tag.CreatedAt
		if e.Simple() {
			stream.Simple[PairKey(e.Artifact, e.Stage)] = true
		}
		stream.Events = append(stream.Events, e)
	}
	log.Debug(log.CatCollect, "Parsed tag refs", "total", len(tags), "matched", len(stream.Events))

	commits, err := c.commitsInScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if err := c.collectCommitEvents(ctx, commits, stream); err != nil {
		return nil, err
	}

	if err := c.collectHeadMeta(ctx, scope, stream); err != nil {
		return nil, err
	}

	sort.SliceStable(stream.Events, func(i, j int) bool {
		return stream.Events[i].Before(stream.Events[j])
	})
	return stream, nil
}

func (c *Collector) commitsInScope(ctx context.Context, scope Scope) ([]git.CommitInfo, error) {
	var (
		commits []git.CommitInfo
		err     error
	)
	switch scope.Kind {
	case ScopeHead:
		commits, err = c.exec.ListCommits(ctx, "-1", "HEAD")
	case ScopeBranches:
		commits, err = c.exec.ListCommits(ctx, "--branches")
	case ScopeAll:
		commits, err = c.exec.ListCommits(ctx, "--all")
	case ScopeCommits:
		if len(scope.Commits) == 0 {
			return nil, nil
		}
		commits, err = c.exec.ListCommits(ctx, append([]string{"--no-walk"}, scope.Commits...)...)
	}
	if err != nil {
		// An unborn HEAD is an empty registry, not a failure.
		if errors.Is(err, git.ErrRefNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("enumerating commits: %w", err)
	}
	return commits, nil
}

// collectCommitEvents reads the index at each commit in scope and emits
// a synthetic commit event per artifact row. Reads run in parallel; the
// per-commit parse is memoised by sha, so the output stays reproducible.
func (c *Collector) collectCommitEvents(ctx context.Context, commits []git.CommitInfo, stream *Stream) error {
	if len(commits) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, commit := range commits {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			idx, err := c.reader.AtCommitLenient(ctx, commit.Hash)
			if err != nil {
				return err
			}
			if len(idx) == 0 {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for name := range idx {
				stream.Events = append(stream.Events, event.Event{
					Kind:        event.KindCommit,
					Artifact:    name,
					Seq:         event.SeqAbsent,
					Ref:         commit.Hash,
					Commit:      commit.Hash,
					Author:      commit.AuthorName,
					AuthorEmail: commit.AuthorEmail,
					CreatedAt:   commit.CommittedAt,
				})
			}
			return nil
		})
	}
	return g.Wait()
}

// collectHeadMeta captures the freshest index metadata and, when the
// scope includes the working tree, emits annotation events for rows
// that are not committed anywhere yet.
func (c *Collector) collectHeadMeta(ctx context.Context, scope Scope, stream *Stream) error {
	head, err := c.exec.ResolveCommit(ctx, "HEAD")
	if err == nil {
		idx, err := c.reader.AtCommit(ctx, head.Hash)
		if err != nil {
			// Malformed at HEAD is a real configuration problem.
			return err
		}
		// Clone: the reader memoises parses and the stream may be
		// extended with working-tree rows below.
		stream.Meta = make(index.Index, len(idx))
		for name, art := range idx {
			stream.Meta[name] = art
		}
	} else if !errors.Is(err, git.ErrRefNotFound) {
		return fmt.Errorf("resolving HEAD: %w", err)
	}

	if !scope.IncludeWorkingTree {
		return nil
	}
	wt, err := c.reader.WorkingTree()
	if err != nil {
		return err
	}
	committed := make(map[string]bool)
	for _, e := range stream.Events {
		committed[e.Artifact] = true
	}
	for name, art := range wt {
		stream.Meta[name] = art
		if committed[name] {
			continue
		}
		stream.Events = append(stream.Events, event.Event{
			Kind:     event.KindAnnotation,
			Artifact: name,
			Seq:      event.SeqAbsent,
			Ref:      "workspace",
			Commit:   "",
		})
	}
	return nil
}
