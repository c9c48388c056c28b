// Package testutil provides an in-memory git adapter and a fluent repo
// builder for registry tests. No real repository or subprocess is
// involved, so tests stay fast and deterministic.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/gto/internal/git"
)

// Epoch is the base timestamp fake commits and tags count from.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// FakeRepo is an in-memory git.Executor.
type FakeRepo struct {
	mu      sync.Mutex
	commits map[string]git.CommitInfo
	order   []string                     // insertion order, oldest first
	files   map[string]map[string][]byte // commit → path → content
	tags    []git.TagRef
	head    string
	clock   time.Time
	root    string
}

// Compile-time check that FakeRepo implements git.Executor.
var _ git.Executor = (*FakeRepo)(nil)

// NewFakeRepo creates an empty fake repository.
func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		commits: map[string]git.CommitInfo{},
		files:   map[string]map[string][]byte{},
		clock:   Epoch,
		root:    "/fake/repo",
	}
}

func (f *FakeRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

// AddCommit records a commit with the given files and advances HEAD.
func (f *FakeRepo) AddCommit(sha string, files map[string]string) git.CommitInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := git.CommitInfo{
		Hash:        sha,
		AuthorName:  "Test Author",
		AuthorEmail: "test@example.com",
		CommittedAt: f.tick(),
	}
	f.commits[sha] = info
	f.order = append(f.order, sha)
	blob := map[string][]byte{}
	for path, content := range files {
		blob[path] = []byte(content)
	}
	f.files[sha] = blob
	f.head = sha
	return info
}

// AddTag records a tag ref at the given commit, stamped with the next
// clock tick.
func (f *FakeRepo) AddTag(name, target string) git.TagRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addTagLocked(name, target, f.tick())
}

// AddTagAt records a tag ref with an explicit creation time.
func (f *FakeRepo) AddTagAt(name, target string, at time.Time) git.TagRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addTagLocked(name, target, at)
}

func (f *FakeRepo) addTagLocked(name, target string, at time.Time) git.TagRef {
	tag := git.TagRef{
		Name:        name,
		Target:      target,
		TaggerName:  "Test Author",
		TaggerEmail: "test@example.com",
		CreatedAt:   at,
		Annotated:   true,
		Message:     "tag " + name,
	}
	f.tags = append(f.tags, tag)
	return tag
}

// TagNames returns the current tag names, sorted.
func (f *FakeRepo) TagNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.tags))
	for i, t := range f.tags {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// --- git.Executor ---

func (f *FakeRepo) IsGitRepo() bool { return true }

func (f *FakeRepo) RepoRoot() (string, error) { return f.root, nil }

func (f *FakeRepo) ResolveCommit(ctx context.Context, ref string) (git.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref == "HEAD" {
		if f.head == "" {
			return git.CommitInfo{}, fmt.Errorf("%w: HEAD", git.ErrRefNotFound)
		}
		ref = f.head
	}
	for _, t := range f.tags {
		if t.Name == ref {
			ref = t.Target
			break
		}
	}
	for sha, info := range f.commits {
		if sha == ref || strings.HasPrefix(sha, ref) {
			return info, nil
		}
	}
	return git.CommitInfo{}, fmt.Errorf("%w: %s", git.ErrRefNotFound, ref)
}

func (f *FakeRepo) ListTags(ctx context.Context) ([]git.TagRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]git.TagRef(nil), f.tags...), nil
}

func (f *FakeRepo) CreateTag(ctx context.Context, name, target, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tags {
		if t.Name == name {
			return fmt.Errorf("%w: %s", git.ErrTagExists, name)
		}
	}
	if _, ok := f.commits[target]; !ok {
		return fmt.Errorf("%w: %s", git.ErrRefNotFound, target)
	}
	tag := f.addTagLocked(name, target, f.tick())
	tag.Message = message
	f.tags[len(f.tags)-1] = tag
	return nil
}

func (f *FakeRepo) DeleteTag(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tags {
		if t.Name == name {
			f.tags = append(f.tags[:i], f.tags[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", git.ErrTagNotFound, name)
}

func (f *FakeRepo) ListCommits(ctx context.Context, selectors ...string) ([]git.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.head == "" {
		return nil, fmt.Errorf("%w: HEAD", git.ErrRefNotFound)
	}

	// "-1 HEAD" is the head-only scope; "--no-walk <shas>" an explicit
	// set; anything else walks the full history.
	if len(selectors) == 2 && selectors[0] == "-1" {
		return []git.CommitInfo{f.commits[f.head]}, nil
	}
	if len(selectors) > 0 && selectors[0] == "--no-walk" {
		var out []git.CommitInfo
		for _, sha := range selectors[1:] {
			if info, ok := f.commits[sha]; ok {
				out = append(out, info)
			}
		}
		return out, nil
	}
	out := make([]git.CommitInfo, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.commits[f.order[i]])
	}
	return out, nil
}

func (f *FakeRepo) FileAtCommit(ctx context.Context, commit, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	blob, ok := f.files[commit]
	if !ok {
		return nil, fmt.Errorf("%w: %s", git.ErrRefNotFound, commit)
	}
	data, ok := blob[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", git.ErrFileNotFound, commit, path)
	}
	return data, nil
}
