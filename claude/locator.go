package claude

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

// DefaultLookupTimeout bounds the login shell fallback
const DefaultLookupTimeout = 10 * time.Second

// LocatorOptions configures executable discovery
type LocatorOptions struct {
	// Name of the binary, "claude" by default
	Name string

	// Override is probed before anything else
	Override string

	// Home defaults to the current user's home directory
	Home string

	// Shell runs the fallback lookup; $SHELL, then /bin/sh
	Shell string

	LookupTimeout time.Duration
}

// Locator finds the CLI binary and caches the first hit. Invalidate may run
// concurrently with Locate: a probe that started before the invalidation
// returns its result but does not cache it.
type Locator struct {
	opts LocatorOptions

	mu         sync.Mutex
	cached     string
	generation uint64
}

// NewLocator creates a locator with defaults filled in
func NewLocator(opts LocatorOptions) *Locator {
	if opts.Name == "" {
		opts.Name = "claude"
	}
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}
	if opts.Shell == "" {
		opts.Shell = os.Getenv("SHELL")
	}
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	return &Locator{opts: opts}
}

// Name returns the binary name being searched for
func (l *Locator) Name() string {
	return l.opts.Name
}

// Locate returns the cached path or probes for one.
func (l *Locator) Locate(ctx context.Context) (string, error) {
	l.mu.Lock()
	if l.cached != "" {
		path := l.cached
		l.mu.Unlock()
		return path, nil
	}
	gen := l.generation
	l.mu.Unlock()

	path, err := l.probe(ctx)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	if l.generation == gen {
		l.cached = path
	}
	l.mu.Unlock()

	log.Info().Str("path", path).Msg("claude executable located")
	return path, nil
}

// Invalidate forgets the cached path, e.g. after the CLI was (re)installed
func (l *Locator) Invalidate() {
	l.mu.Lock()
	l.cached = ""
	l.generation++
	l.mu.Unlock()
	log.Debug().Msg("claude executable cache invalidated")
}

// Candidates returns every file path probed before the shell fallback, in order
func (l *Locator) Candidates() []string {
	var dirs []string
	home := l.opts.Home
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".claude", "local"),
		)
	}
	dirs = append(dirs, "/opt/homebrew/bin", "/usr/local/bin", "/usr/bin")
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".volta", "bin"),
			filepath.Join(home, ".bun", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, ".asdf", "shims"),
		)
		dirs = append(dirs, nvmBinDirs(home)...)
	}

	paths := make([]string, 0, len(dirs)+1)
	if l.opts.Override != "" {
		paths = append(paths, l.opts.Override)
	}
	for _, d := range dirs {
		paths = append(paths, filepath.Join(d, l.opts.Name))
	}
	return paths
}

func (l *Locator) probe(ctx context.Context) (string, error) {
	candidates := l.Candidates()
	for _, path := range candidates {
		if isExecutable(path) {
			return path, nil
		}
	}

	path, err := l.shellLookup(ctx)
	if err == nil {
		return path, nil
	}
	log.Debug().Err(err).Msg("login shell lookup failed")

	return "", &ExecutableNotFoundError{
		Name:        l.opts.Name,
		Searched:    append(candidates, "$SHELL -l -c 'which "+l.opts.Name+"'"),
		InstallHint: InstallHint,
	}
}

// shellLookup asks a login shell, which sources the user's profile and so
// sees version-manager PATH changes the host process never got.
func (l *Locator) shellLookup(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.LookupTimeout)
	defer cancel()

	name := l.opts.Name
	script := fmt.Sprintf("which %s && %s --version", name, name)
	cmd := exec.CommandContext(ctx, l.opts.Shell, "-l", "-c", script)
	cmd.Env = []string{
		"HOME=" + l.opts.Home,
		"PATH=" + joinUnique(CommonBinDirs(l.opts.Home)),
	}

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("shell lookup: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	if !scanner.Scan() {
		return "", fmt.Errorf("shell lookup: empty output")
	}
	path := strings.TrimSpace(scanner.Text())
	if !filepath.IsAbs(path) || !isExecutable(path) {
		return "", fmt.Errorf("shell lookup: unusable path %q", path)
	}
	return path, nil
}

// Version runs `<path> --version`
func (l *Locator) Version(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.LookupTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// nvmBinDirs lists ~/.nvm/versions/node/*/bin, newest node first
func nvmBinDirs(home string) []string {
	root := filepath.Join(home, ".nvm", "versions", "node")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})

	dirs := make([]string, len(versions))
	for i, v := range versions {
		dirs[i] = filepath.Join(root, v, "bin")
	}
	return dirs
}

// compareVersions compares "v20.11.1"-style strings numerically
func compareVersions(a, b string) int {
	pa := strings.Split(strings.TrimPrefix(a, "v"), ".")
	pb := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			if na > nb {
				return 1
			}
			return -1
		}
	}
	return strings.Compare(a, b)
}
