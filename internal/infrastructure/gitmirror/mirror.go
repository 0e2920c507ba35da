// Package gitmirror compares branches against local bare mirrors of project
// repositories instead of asking the hosting service.
package gitmirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const remoteName = "origin"

var fetchSpec = config.RefSpec("+refs/heads/*:refs/remotes/origin/*")

// Config configures the mirror comparer.
type Config struct {
	// Dir holds one bare mirror per project.
	Dir string
	// BaseURL is the clone URL prefix; a project is cloned from
	// BaseURL/<projectRef>.git.
	BaseURL        string
	Token          string
	CompareTimeout time.Duration
}

// Mirror implements BranchComparer on local mirrors refreshed before every
// comparison.
type Mirror struct {
	cfg    Config
	auth   transport.AuthMethod
	logger *slog.Logger

	mu    sync.Mutex
	repos map[string]*sync.Mutex
}

// Ensure Mirror implements the interface.
var _ ports.BranchComparer = (*Mirror)(nil)

// New creates a Mirror.
func New(cfg Config) *Mirror {
	if cfg.CompareTimeout == 0 {
		cfg.CompareTimeout = 10 * time.Second
	}
	m := &Mirror{
		cfg:    cfg,
		logger: slog.Default().With("component", "git_mirror"),
		repos:  make(map[string]*sync.Mutex),
	}
	if cfg.Token != "" {
		m.auth = &githttp.BasicAuth{Username: "oauth2", Password: cfg.Token}
	}
	return m
}

// Compare counts the commits on target missing from source.
func (m *Mirror) Compare(ctx context.Context, projectRef, source, target string) (ports.CompareResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CompareTimeout)
	defer cancel()

	lock := m.repoLock(projectRef)
	lock.Lock()
	defer lock.Unlock()

	n, err := m.compare(ctx, projectRef, source, target)
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Warn("branch comparison timed out", "project", projectRef, "source", source, "target", target)
		return ports.CompareResult{TimedOut: true}, nil
	}
	if err != nil {
		return ports.CompareResult{}, err
	}
	return ports.CompareResult{AheadCommits: n}, nil
}

func (m *Mirror) compare(ctx context.Context, projectRef, source, target string) (int, error) {
	repo, err := m.open(ctx, projectRef)
	if err != nil {
		return 0, err
	}

	src, err := resolveBranch(repo, source)
	if err != nil {
		return 0, err
	}
	dst, err := resolveBranch(repo, target)
	if err != nil {
		return 0, err
	}

	reachable := make(map[plumbing.Hash]struct{})
	if err := walk(ctx, repo, src, func(c *object.Commit) error {
		reachable[c.Hash] = struct{}{}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("walking %s: %w", source, err)
	}

	missing := 0
	if err := walk(ctx, repo, dst, func(c *object.Commit) error {
		if _, ok := reachable[c.Hash]; !ok {
			missing++
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("walking %s: %w", target, err)
	}
	return missing, nil
}

// open returns the project's mirror, cloning it on first use and fetching
// every branch otherwise.
func (m *Mirror) open(ctx context.Context, projectRef string) (*git.Repository, error) {
	path := filepath.Join(m.cfg.Dir, filepath.FromSlash(projectRef)+".git")
	url := m.remoteURL(projectRef)

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating mirror directory: %w", err)
		}
		repo, err = git.PlainInit(path, true)
		if err != nil {
			return nil, fmt.Errorf("initializing mirror of %s: %w", projectRef, err)
		}
		if _, err := repo.CreateRemote(&config.RemoteConfig{
			Name:  remoteName,
			URLs:  []string{url},
			Fetch: []config.RefSpec{fetchSpec},
		}); err != nil {
			return nil, fmt.Errorf("configuring mirror remote: %w", err)
		}
		m.logger.Info("created mirror", "project", projectRef, "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("opening mirror of %s: %w", projectRef, err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{fetchSpec},
		Auth:       m.auth,
		Prune:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("fetching %s: %w", projectRef, err)
	}
	return repo, nil
}

func (m *Mirror) remoteURL(projectRef string) string {
	if m.cfg.BaseURL == "" {
		return projectRef
	}
	return strings.TrimSuffix(m.cfg.BaseURL, "/") + "/" + projectRef + ".git"
}

func (m *Mirror) repoLock(projectRef string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.repos[projectRef]
	if !ok {
		l = &sync.Mutex{}
		m.repos[projectRef] = l
	}
	return l
}

func resolveBranch(repo *git.Repository, branch string) (plumbing.Hash, error) {
	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving branch %s: %w", branch, err)
	}
	return ref.Hash(), nil
}

func walk(ctx context.Context, repo *git.Repository, from plumbing.Hash, fn func(*object.Commit) error) error {
	iter, err := repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return err
	}
	defer iter.Close()
	return iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(c)
	})
}
