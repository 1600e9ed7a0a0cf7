package claude

import (
	"os"
	"path/filepath"
	"strings"
)

// CommonBinDirs are the directories a login shell usually has on PATH but a
// GUI-launched process often does not.
func CommonBinDirs(home string) []string {
	dirs := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		"/usr/bin",
		"/bin",
	}
	if home == "" {
		return dirs
	}
	return append([]string{
		filepath.Join(home, ".local", "bin"),
		filepath.Join(home, ".claude", "local"),
		filepath.Join(home, ".volta", "bin"),
		filepath.Join(home, ".bun", "bin"),
		filepath.Join(home, ".npm-global", "bin"),
		filepath.Join(home, ".asdf", "shims"),
	}, dirs...)
}

// BuildEnv returns base with HOME set to home and the common bin directories
// prepended to PATH. Duplicate PATH entries keep their first position.
func BuildEnv(base []string, home string) []string {
	hostPath := ""
	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "PATH":
			hostPath = value
		case "HOME":
			if home == "" {
				home = value
			}
		default:
			env = append(env, kv)
		}
	}

	var parts []string
	parts = append(parts, CommonBinDirs(home)...)
	if hostPath != "" {
		parts = append(parts, filepath.SplitList(hostPath)...)
	}

	if home != "" {
		env = append(env, "HOME="+home)
	}
	return append(env, "PATH="+joinUnique(parts))
}

// HostEnv builds the child environment from the current process environment.
func HostEnv() []string {
	home, _ := os.UserHomeDir()
	return BuildEnv(os.Environ(), home)
}

func joinUnique(parts []string) string {
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, string(os.PathListSeparator))
}

// RedactEnv masks values whose key looks like a credential, for logging.
func RedactEnv(env []string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") ||
			strings.Contains(lower, "key") ||
			strings.Contains(lower, "secret") ||
			strings.Contains(lower, "password") {
			out[i] = key + "=[REDACTED]"
			continue
		}
		out[i] = kv
	}
	return out
}
