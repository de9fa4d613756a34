// Package git reads commit history from a local repository so it can be
// fed to profile evolution.
package git

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/coresight/coresight/internal/types"
)

const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"

	// logFormat is hash, author name, author email, author date, subject
	logFormat = recordSep + "%H" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%aI" + fieldSep + "%s"

	// maxDiffFiles bounds the per-file lines in a diff summary
	maxDiffFiles = 20
)

// Git runs the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// LogOptions selects commits to read.
type LogOptions struct {
	// Rev is the revision to walk from; empty means HEAD
	Rev      string
	Since    time.Time
	MaxCount int
}

// CurrentBranch returns the short name of HEAD.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Log returns non-merge commits oldest first with line counts filled in.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) Log(ctx context.Context, repoPath string, opts LogOptions) ([]*types.Commit, error) {
	branch, err := g.CurrentBranch(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	args := []string{"-C", repoPath, "log", "--no-merges", "--reverse", "--numstat", "--format=" + logFormat}
	if !opts.Since.IsZero() {
		args = append(args, "--since="+opts.Since.Format(time.RFC3339))
	}
	if opts.MaxCount > 0 {
		args = append(args, "--max-count="+strconv.Itoa(opts.MaxCount))
	}
	if opts.Rev != "" {
		args = append(args, opts.Rev, "--")
	}

	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log failed in %s: %w", repoPath, err)
	}
	return ParseLog(strings.NewReader(string(out)), repoPath, branch)
}

type fileStat struct {
	path           string
	added, deleted int
	binary         bool
}

// ParseLog parses the output of git log with logFormat and --numstat.
//
// numstat reports a changed line as one deletion plus one addition, so
// per file the overlap min(added, deleted) is counted as modified and
// only the remainder as added or deleted.
func ParseLog(r io.Reader, repository, branch string) ([]*types.Commit, error) {
	var commits []*types.Commit
	var cur *types.Commit
	var files []fileStat

	flush := func() {
		if cur == nil {
			return
		}
		cur.FilesChanged = len(files)
		cur.DiffSummary = diffSummary(files)
		for _, f := range files {
			mod := min(f.added, f.deleted)
			cur.LinesModified += mod
			cur.LinesAdded += f.added - mod
			cur.LinesDeleted += f.deleted - mod
		}
		commits = append(commits, cur)
		cur, files = nil, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, recordSep) {
			flush()
			c, err := parseHeader(strings.TrimPrefix(line, recordSep))
			if err != nil {
				return nil, err
			}
			c.Repository = repository
			c.Branch = branch
			cur = c
			continue
		}
		if strings.TrimSpace(line) == "" || cur == nil {
			continue
		}
		f, err := parseNumstat(line)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", cur.Hash, err)
		}
		files = append(files, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read git log: %w", err)
	}
	flush()
	return commits, nil
}

func parseHeader(line string) (*types.Commit, error) {
	parts := strings.SplitN(line, fieldSep, 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("malformed commit header: %q", line)
	}
	ts, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		return nil, fmt.Errorf("commit %s: invalid author date %q: %w", parts[0], parts[3], err)
	}
	return &types.Commit{
		Hash:        parts[0],
		AuthorName:  parts[1],
		AuthorEmail: parts[2],
		Timestamp:   ts.UTC(),
		Message:     parts[4],
	}, nil
}

// parseNumstat parses "added<TAB>deleted<TAB>path". Binary files report
// "-" for both counts.
func parseNumstat(line string) (fileStat, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return fileStat{}, fmt.Errorf("malformed numstat line: %q", line)
	}
	f := fileStat{path: parts[2]}
	if parts[0] == "-" && parts[1] == "-" {
		f.binary = true
		return f, nil
	}
	var err error
	if f.added, err = strconv.Atoi(parts[0]); err != nil {
		return fileStat{}, fmt.Errorf("malformed numstat line: %q", line)
	}
	if f.deleted, err = strconv.Atoi(parts[1]); err != nil {
		return fileStat{}, fmt.Errorf("malformed numstat line: %q", line)
	}
	return f, nil
}

func diffSummary(files []fileStat) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d file(s) changed\n", len(files))
	for i, f := range files {
		if i == maxDiffFiles {
			fmt.Fprintf(&b, "... %d more\n", len(files)-i)
			break
		}
		if f.binary {
			fmt.Fprintf(&b, "%s (binary)\n", f.path)
			continue
		}
		fmt.Fprintf(&b, "%s +%d -%d\n", f.path, f.added, f.deleted)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
