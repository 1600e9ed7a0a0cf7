package claude

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystem is the read capability used for transcript checks
type FileSystem interface {
	Exists(path string) bool
	ReadDir(path string) ([]os.DirEntry, error)
}

// OSFileSystem reads the real filesystem
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (OSFileSystem) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// TranscriptLocator maps a project and session to the transcript file the
// CLI keeps for it.
type TranscriptLocator func(projectPath, sessionID string) string

const transcriptExt = ".jsonl"

// EncodeProjectDir converts a project path to the CLI's directory name:
// "/Users/foo/my.app" becomes "-Users-foo-my-app".
func EncodeProjectDir(projectPath string) string {
	cleaned := filepath.Clean(projectPath)
	return strings.NewReplacer("/", "-", "\\", "-", ".", "-").Replace(cleaned)
}

// ClaudeTranscriptPath locates transcripts where the CLI writes them:
// <claudeHome>/projects/<encoded project>/<session>.jsonl
func ClaudeTranscriptPath(claudeHome string) TranscriptLocator {
	return func(projectPath, sessionID string) string {
		return filepath.Join(claudeHome, "projects", EncodeProjectDir(projectPath), sessionID+transcriptExt)
	}
}

// ProjectTranscriptPath locates transcripts inside the project:
// <project>/.transcripts/<session>.jsonl
func ProjectTranscriptPath() TranscriptLocator {
	return func(projectPath, sessionID string) string {
		return filepath.Join(projectPath, ".transcripts", sessionID+transcriptExt)
	}
}

// TranscriptLayout picks a locator by name: "project" or anything else for
// the CLI's own layout.
func TranscriptLayout(name, claudeHome string) TranscriptLocator {
	if name == "project" {
		return ProjectTranscriptPath()
	}
	return ClaudeTranscriptPath(claudeHome)
}

// listTranscripts returns the session ids found in dir, most recently
// modified first.
func listTranscripts(fsys FileSystem, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	type transcript struct {
		id      string
		modTime int64
	}
	found := make([]transcript, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, transcriptExt) {
			continue
		}
		t := transcript{id: strings.TrimSuffix(name, transcriptExt)}
		if info, err := entry.Info(); err == nil {
			t.modTime = info.ModTime().UnixNano()
		}
		found = append(found, t)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].modTime != found[j].modTime {
			return found[i].modTime > found[j].modTime
		}
		return found[i].id < found[j].id
	})

	ids := make([]string, len(found))
	for i, t := range found {
		ids[i] = t.id
	}
	return ids, nil
}
