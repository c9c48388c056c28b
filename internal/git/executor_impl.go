package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/gto/internal/log"
)

// Git-specific errors surfaced to the registry core.
var (
	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrTagExists indicates the tag name is already taken.
	ErrTagExists = errors.New("tag already exists")

	// ErrTagNotFound indicates the tag does not exist.
	ErrTagNotFound = errors.New("tag not found")

	// ErrRefNotFound indicates the ref cannot be resolved to a commit.
	ErrRefNotFound = errors.New("ref not found")

	// ErrFileNotFound indicates the path does not exist at the commit.
	ErrFileNotFound = errors.New("file not found at commit")
)

// Compile-time check that RealExecutor implements Executor.
var _ Executor = (*RealExecutor)(nil)

// RealExecutor implements Executor by executing actual git commands.
type RealExecutor struct {
	workDir string
}

// NewRealExecutor creates a new RealExecutor rooted at workDir.
func NewRealExecutor(workDir string) *RealExecutor {
	return &RealExecutor{workDir: workDir}
}

// runGit executes a git command and returns an error if it fails.
func (e *RealExecutor) runGit(ctx context.Context, args ...string) error {
	_, err := e.runGitOutput(ctx, args...)
	return err
}

// runGitOutput executes a git command and returns stdout and any error.
func (e *RealExecutor) runGitOutput(ctx context.Context, args ...string) (string, error) {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.CommandContext(ctx, "git", args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug(log.CatGit, "running git", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", parseGitError(stderrStr, err)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return strings.TrimRight(stdout.String(), "\n"), nil
}

// parseGitError converts git stderr messages to specific error types.
func parseGitError(stderr string, originalErr error) error {
	stderrLower := strings.ToLower(stderr)

	if strings.Contains(stderrLower, "already exists") {
		return fmt.Errorf("%w: %s", ErrTagExists, stderr)
	}
	if strings.Contains(stderrLower, "not a git repository") {
		return fmt.Errorf("%w: %s", ErrNotGitRepo, stderr)
	}
	if strings.Contains(stderrLower, "unknown revision") ||
		strings.Contains(stderrLower, "bad revision") ||
		strings.Contains(stderrLower, "ambiguous argument") {
		return fmt.Errorf("%w: %s", ErrRefNotFound, stderr)
	}
	if strings.Contains(stderrLower, "does not exist in") ||
		strings.Contains(stderrLower, "exists on disk, but not in") ||
		strings.Contains(stderrLower, "invalid object name") {
		return fmt.Errorf("%w: %s", ErrFileNotFound, stderr)
	}
	if strings.Contains(stderrLower, "not found") {
		return fmt.Errorf("%w: %s", ErrTagNotFound, stderr)
	}

	return fmt.Errorf("git error: %s: %w", stderr, originalErr)
}

// IsGitRepo checks if the working directory is inside a git repository.
func (e *RealExecutor) IsGitRepo() bool {
	err := e.runGit(context.Background(), "rev-parse", "--git-dir")
	return err == nil
}

// RepoRoot returns the root directory of the git repository.
func (e *RealExecutor) RepoRoot() (string, error) {
	return e.runGitOutput(context.Background(), "rev-parse", "--show-toplevel")
}

// ResolveCommit resolves a ref to commit metadata.
func (e *RealExecutor) ResolveCommit(ctx context.Context, ref string) (CommitInfo, error) {
	out, err := e.runGitOutput(ctx, "log", "-1", "--format=%H%x09%ct%x09%an%x09%ae", ref, "--")
	if err != nil {
		return CommitInfo{}, err
	}
	infos := parseCommitLines(out)
	if len(infos) == 0 {
		return CommitInfo{}, fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}
	return infos[0], nil
}

// tagFormat renders one tab-separated line per tag. The %(if) picks the
// peeled commit for annotated tags, and creatordate covers both
// annotated and lightweight tags.
const tagFormat = "%(refname:short)%09%(objecttype)%09" +
	"%(if)%(*objectname)%(then)%(*objectname)%(else)%(objectname)%(end)%09" +
	"%(creatordate:unix)%09" +
	"%(if)%(taggername)%(then)%(taggername)%(else)%(authorname)%(end)%09" +
	"%(if)%(taggeremail)%(then)%(taggeremail)%(else)%(authoremail)%(end)%09" +
	"%(contents:subject)"

// ListTags returns all tag refs with creation metadata.
func (e *RealExecutor) ListTags(ctx context.Context) ([]TagRef, error) {
	out, err := e.runGitOutput(ctx, "for-each-ref", "refs/tags", "--format="+tagFormat)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	if out == "" {
		return nil, nil
	}

	var tags []TagRef
	for line := range strings.SplitSeq(out, "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 7)
		if len(fields) < 7 {
			continue
		}
		unix, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			log.Warn(log.CatGit, "skipping tag with unparsable creatordate", "tag", fields[0])
			continue
		}
		tags = append(tags, TagRef{
			Name:        fields[0],
			Annotated:   fields[1] == "tag",
			Target:      fields[2],
			CreatedAt:   time.Unix(unix, 0).UTC(),
			TaggerName:  fields[4],
			TaggerEmail: strings.Trim(fields[5], "<>"),
			Message:     fields[6],
		})
	}
	return tags, nil
}

// CreateTag creates an annotated tag at target.
func (e *RealExecutor) CreateTag(ctx context.Context, name, target, message string) error {
	// git rejects duplicate names with "already exists"
	return e.runGit(ctx, "tag", "-a", name, "-m", message, target)
}

// DeleteTag removes a tag ref.
func (e *RealExecutor) DeleteTag(ctx context.Context, name string) error {
	return e.runGit(ctx, "tag", "-d", name)
}

// ListCommits enumerates commits matching the rev selectors.
func (e *RealExecutor) ListCommits(ctx context.Context, selectors ...string) ([]CommitInfo, error) {
	args := append([]string{"log", "--format=%H%x09%ct%x09%an%x09%ae"}, selectors...)
	args = append(args, "--")
	out, err := e.runGitOutput(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseCommitLines(out), nil
}

func parseCommitLines(out string) []CommitInfo {
	if out == "" {
		return nil
	}
	var commits []CommitInfo
	for line := range strings.SplitSeq(out, "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 4)
		if len(fields) < 4 {
			continue
		}
		unix, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, CommitInfo{
			Hash:        fields[0],
			CommittedAt: time.Unix(unix, 0).UTC(),
			AuthorName:  fields[2],
			AuthorEmail: fields[3],
		})
	}
	return commits
}

// FileAtCommit reads the blob at commit:path.
func (e *RealExecutor) FileAtCommit(ctx context.Context, commit, path string) ([]byte, error) {
	out, err := e.runGitOutput(ctx, "show", commit+":"+path)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
