// Package gitsource keeps local checkouts of git-hosted decks up to date.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does. Progress is written to
// progress when it is not nil.
func Sync(ctx context.Context, repoURL, localPath string, progress io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("Cloning repository", "url", repoURL, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      repoURL,
			Progress: progress,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
		logger.Info("Clone successful", "path", localPath)

	case err == nil:
		logger.Debug("Pulling latest changes", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Progress:   progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		logger.Info("Pull successful (or already up-to-date)", "path", localPath)

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}

// LocalPath returns the checkout directory for repoURL under baseDir.
// http(s) and ssh URLs and scp-style "git@host:owner/repo.git" addresses
// are accepted.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && remoteScheme(parsed.Scheme) {
		if parsed.Hostname() == "" {
			return "", fmt.Errorf("could not parse git URL host: %s", repoURL)
		}
		return join(baseDir, parsed.Hostname(), parsed.Path)
	}

	user, rest, ok := strings.Cut(repoURL, "@")
	if ok && user != "" {
		host, repoPath, ok := strings.Cut(rest, ":")
		if ok && host != "" && repoPath != "" {
			return join(baseDir, host, repoPath)
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

func join(baseDir, host, repoPath string) (string, error) {
	repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
	if repoPath == "" || strings.Contains(repoPath, "..") {
		return "", fmt.Errorf("could not parse git URL path: %q", repoPath)
	}
	return filepath.Join(baseDir, host, filepath.FromSlash(repoPath)), nil
}

// IsURL reports whether path looks like a git remote rather than a local
// directory.
func IsURL(path string) bool {
	if strings.HasSuffix(path, ".git") {
		return true
	}
	u, err := url.Parse(path)
	if err == nil && remoteScheme(u.Scheme) {
		return true
	}
	return strings.HasPrefix(path, "git@")
}

func remoteScheme(scheme string) bool {
	switch scheme {
	case "https", "http", "ssh":
		return true
	}
	return false
}
