// Package lorearchive mirrors lore versions into one git repository per lore
// entry, giving an append-only history that survives database restores.
package lorearchive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"forgeboard/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile    = "lore.md"
	versionTrailer = "Forge-Version"
)

var (
	ErrNoArchive       = errors.New("lore entry has no archive")
	ErrVersionNotFound = errors.New("version not found in archive")

	trailerPattern = regexp.MustCompile(`(?m)^` + versionTrailer + `: (\d+)$`)
	idPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Commit describes one archived version.
type Commit struct {
	Hash      string    `json:"hash"`
	Version   int       `json:"version"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Archive struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Archive {
	return &Archive{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitVersion writes version as lore.md and commits it on main, creating
// the repository on first use.
func (a *Archive) CommitVersion(version store.LoreVersion) (Commit, error) {
	path, err := a.repoPath(version.LoreID)
	if err != nil {
		return Commit{}, err
	}
	lock := a.loreLock(version.LoreID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := openOrInit(path)
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}

	if err := os.WriteFile(filepath.Join(path, contentFile), []byte(Render(version)), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Commit{}, fmt.Errorf("git add %s: %w", contentFile, err)
	}

	author := version.Author
	if strings.TrimSpace(author) == "" {
		author = "forgeboard"
	}
	when := version.CreatedAt
	if when.IsZero() {
		when = time.Now()
	}
	hash, err := worktree.Commit(commitMessage(version), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@forgeboard.local", sanitizeEmail(author)),
			When:  when,
		},
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit version %d: %w", version.Version, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// History lists archived versions newest first. limit <= 0 returns all.
func (a *Archive) History(loreID string, limit int) ([]Commit, error) {
	repo, unlock, err := a.open(loreID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ReadVersion returns the archived lore.md for version.
func (a *Archive) ReadVersion(loreID string, version int) (string, error) {
	repo, unlock, err := a.open(loreID)
	if err != nil {
		return "", err
	}
	defer unlock()

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var found *object.Commit
	err = iter.ForEach(func(commitObj *object.Commit) error {
		if parseVersion(commitObj.Message) == version {
			found = commitObj
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("iterate log: %w", err)
	}
	if found == nil {
		return "", ErrVersionNotFound
	}

	file, err := found.File(contentFile)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	return file.Contents()
}

// Remove deletes the archive of a lore entry. Missing archives are ignored.
func (a *Archive) Remove(loreID string) error {
	path, err := a.repoPath(loreID)
	if err != nil {
		return err
	}
	lock := a.loreLock(loreID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove archive: %w", err)
	}
	return nil
}

// Render produces the markdown stored for a version.
func Render(version store.LoreVersion) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(version.Title)
	b.WriteString("\n\n")
	b.WriteString(strings.ReplaceAll(version.Content, "\r\n", "\n"))
	if !strings.HasSuffix(version.Content, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (a *Archive) open(loreID string) (*git.Repository, func(), error) {
	path, err := a.repoPath(loreID)
	if err != nil {
		return nil, nil, err
	}
	lock := a.loreLock(loreID)
	lock.Lock()

	repo, err := git.PlainOpen(path)
	if err != nil {
		lock.Unlock()
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil, ErrNoArchive
		}
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, lock.Unlock, nil
}

func (a *Archive) repoPath(loreID string) (string, error) {
	if !idPattern.MatchString(loreID) {
		return "", fmt.Errorf("invalid lore id %q", loreID)
	}
	return filepath.Join(a.baseDir, loreID), nil
}

func (a *Archive) loreLock(loreID string) *sync.Mutex {
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[loreID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[loreID] = lock
	return lock
}

func openOrInit(path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func commitMessage(version store.LoreVersion) string {
	subject := strings.TrimSpace(version.Note)
	if subject == "" {
		subject = "Update " + version.Title
	}
	return fmt.Sprintf("v%d: %s\n\n%s: %d\n", version.Version, subject, versionTrailer, version.Version)
}

func parseVersion(message string) int {
	match := trailerPattern.FindStringSubmatch(message)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

func toCommit(commitObj *object.Commit) Commit {
	message := commitObj.Message
	if idx := strings.Index(message, "\n"); idx >= 0 {
		message = message[:idx]
	}
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Version:   parseVersion(commitObj.Message),
		Message:   message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
