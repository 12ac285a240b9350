package watch

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/docsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile holds extra gitignore-style rules at the sync root.
const IgnoreFile = ".docsyncignore"

var defaultIgnoreLines = []string{
	// docsync
	".docsync/",
	IgnoreFile,
	".*.tmp-*",
	// editors
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// general
	".git",
	"*.tmp",
	"*.log",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList decides which paths under the sync root never trigger a pass.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir, ignore: gitignore.CompileIgnoreLines(defaultIgnoreLines...)}
}

// Load compiles the default rules plus those in IgnoreFile, if present.
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, IgnoreFile)
	lines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("watch", "op", "load ignore", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					lines = append(lines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("watch", "op", "load ignore", "path", ignorePath, "error", err)
			} else {
				slog.Info("watch", "op", "load ignore", "path", ignorePath, "rules", rules)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore takes a path relative to the sync root.
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	return l.ignore.MatchesPath(filepath.ToSlash(rel))
}
