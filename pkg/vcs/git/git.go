// Package git archives map state snapshots in a local Git repository.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultRemote is the remote name used for push and pull.
const DefaultRemote = "origin"

var (
	// ErrNotInitialized indicates Init has not been called.
	ErrNotInitialized = errors.New("repository not initialized")
	// ErrNoRemote indicates a push or pull without a configured remote.
	ErrNoRemote = errors.New("no remote configured")
)

// Status represents Git state following a commit attempt.
type Status struct {
	Committed bool
	Hash      string
}

// Commit summarises one history entry.
type Commit struct {
	Hash    string
	Message string
	When    time.Time
}

// Repo wraps a working tree holding snapshot files.
type Repo struct {
	Path        string
	Branch      string
	AuthorName  string
	AuthorEmail string

	repo *gogit.Repository
}

// Init opens the repository at Path, creating it when absent.
func (r *Repo) Init(ctx context.Context) error {
	_ = ctx
	if err := os.MkdirAll(r.Path, 0o700); err != nil {
		return err
	}
	repo, err := gogit.PlainOpen(r.Path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		branch := r.Branch
		if branch == "" {
			branch = "main"
		}
		repo, err = gogit.PlainInitWithOptions(r.Path, &gogit.PlainInitOptions{
			InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
		})
	}
	if err != nil {
		return fmt.Errorf("open repository %s: %w", r.Path, err)
	}
	r.repo = repo
	return nil
}

// Commit stages files (relative to Path) and records a commit when anything changed.
func (r *Repo) Commit(ctx context.Context, message string, files ...string) (Status, error) {
	_ = ctx
	if r.repo == nil {
		return Status{}, ErrNotInitialized
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return Status{}, err
	}
	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return Status{}, fmt.Errorf("stage %s: %w", f, err)
		}
	}
	st, err := wt.Status()
	if err != nil {
		return Status{}, err
	}
	if !staged(st) {
		return Status{}, nil
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: r.AuthorName, Email: r.AuthorEmail, When: time.Now()},
	})
	if err != nil {
		return Status{}, fmt.Errorf("commit: %w", err)
	}
	return Status{Committed: true, Hash: hash.String()}, nil
}

// SetRemote points DefaultRemote at url, replacing any previous value.
func (r *Repo) SetRemote(url string) error {
	if r.repo == nil {
		return ErrNotInitialized
	}
	if err := r.repo.DeleteRemote(DefaultRemote); err != nil && !errors.Is(err, gogit.ErrRemoteNotFound) {
		return err
	}
	_, err := r.repo.CreateRemote(&gitconfig.RemoteConfig{Name: DefaultRemote, URLs: []string{url}})
	return err
}

// RemoteURL returns the configured remote URL, if any.
func (r *Repo) RemoteURL() (string, error) {
	if r.repo == nil {
		return "", ErrNotInitialized
	}
	remote, err := r.repo.Remote(DefaultRemote)
	if errors.Is(err, gogit.ErrRemoteNotFound) {
		return "", ErrNoRemote
	}
	if err != nil {
		return "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", ErrNoRemote
	}
	return urls[0], nil
}

// Push pushes to DefaultRemote. An up-to-date remote is not an error.
func (r *Repo) Push(ctx context.Context) error {
	if _, err := r.RemoteURL(); err != nil {
		return err
	}
	err := r.repo.PushContext(ctx, &gogit.PushOptions{RemoteName: DefaultRemote})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// Pull fetches and fast-forward merges from DefaultRemote.
func (r *Repo) Pull(ctx context.Context) error {
	if _, err := r.RemoteURL(); err != nil {
		return err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{RemoteName: DefaultRemote})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// Log returns up to limit commits reachable from HEAD, newest first.
func (r *Repo) Log(limit int) ([]Commit, error) {
	if r.repo == nil {
		return nil, ErrNotInitialized
	}
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	iter, err := r.repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []Commit
	for limit <= 0 || len(out) < limit {
		c, err := iter.Next()
		if err != nil {
			break
		}
		out = append(out, Commit{Hash: c.Hash.String(), Message: c.Message, When: c.Author.When})
	}
	return out, nil
}

// staged reports whether the index differs from HEAD. Untracked files such as
// the database do not count.
func staged(st gogit.Status) bool {
	for _, fs := range st {
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			return true
		}
	}
	return false
}
