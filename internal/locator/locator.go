// Package locator maps workspace paths to session directories and finds
// session files within them. All lookups are best effort: I/O errors
// degrade to empty results so the caller's discovery loop stays alive.
package locator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SessionExt is the extension session log files carry on disk.
const SessionExt = ".jsonl"

var encodeReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"_", "-",
)

// Encode transforms a workspace path into the on-disk directory name used
// for its sessions. Path separators, colons, and underscores collapse to a
// single joining character, so /home/user/proj becomes -home-user-proj.
// The transform is pure: trailing separators are normalized away first.
func Encode(workspacePath string) string {
	clean := filepath.Clean(workspacePath)
	return encodeReplacer.Replace(clean)
}

// ResolveSessionDirectory locates the directory holding workspacePath's
// session files. It tries, in order: the predicted encoded name under root,
// a case-insensitive scan of root, a scan for directories whose name ends
// with the workspace's final path component, and finally a scan of
// scratchRoot mapped back to root. Returns "" when nothing matches.
func ResolveSessionDirectory(root, scratchRoot, workspacePath string) string {
	if root == "" || workspacePath == "" {
		return ""
	}

	token := Encode(workspacePath)

	predicted := filepath.Join(root, token)
	if isDir(predicted) {
		return predicted
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		entries = nil
	}

	// Exact name match ignoring case (macOS-style case-insensitive
	// filesystems produce directories whose case differs from the
	// workspace path).
	lowerToken := strings.ToLower(token)
	for _, e := range entries {
		if e.IsDir() && strings.ToLower(e.Name()) == lowerToken {
			return filepath.Join(root, e.Name())
		}
	}

	// Suffix match on the workspace's final path component. Catches
	// directories encoded from a different mount point or symlinked root.
	base := Encode(filepath.Base(filepath.Clean(workspacePath)))
	if base != "" && base != "-" {
		for _, e := range entries {
			if e.IsDir() && strings.HasSuffix(e.Name(), base) {
				return filepath.Join(root, e.Name())
			}
		}
	}

	// Secondary scratch location: a matching name there tells us which
	// directory to use under the primary root.
	if scratchRoot != "" {
		scratchEntries, err := os.ReadDir(scratchRoot)
		if err == nil {
			for _, e := range scratchEntries {
				if !e.IsDir() {
					continue
				}
				name := e.Name()
				if strings.EqualFold(name, token) || (base != "" && base != "-" && strings.HasSuffix(name, base)) {
					mapped := filepath.Join(root, name)
					if isDir(mapped) {
						return mapped
					}
				}
			}
		}
	}

	return ""
}

type sessionFile struct {
	path    string
	modTime time.Time
	size    int64
}

// FindActiveSession returns the session file in dir most likely to belong
// to a live session: empty files are skipped, files modified within
// activeThreshold outrank older ones, and modification time breaks ties.
// Returns "" when dir has no usable session files.
func FindActiveSession(dir string, activeThreshold time.Duration) string {
	files := listSessionFiles(dir)

	now := time.Now()
	sort.SliceStable(files, func(i, j int) bool {
		activeI := now.Sub(files[i].modTime) <= activeThreshold
		activeJ := now.Sub(files[j].modTime) <= activeThreshold
		if activeI != activeJ {
			return activeI
		}
		return files[i].modTime.After(files[j].modTime)
	})

	for _, f := range files {
		if f.size > 0 {
			return f.path
		}
	}
	return ""
}

// FindAllSessions returns every session file in dir, most recently
// modified first.
func FindAllSessions(dir string) []string {
	files := listSessionFiles(dir)
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths
}

// SessionID derives a session identifier from a session file path.
func SessionID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), SessionExt)
}

// IsSessionFile reports whether a directory entry name looks like a
// session log.
func IsSessionFile(name string) bool {
	return strings.HasSuffix(name, SessionExt)
}

func listSessionFiles(dir string) []sessionFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []sessionFile
	for _, e := range entries {
		if e.IsDir() || !IsSessionFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, sessionFile{
			path:    filepath.Join(dir, e.Name()),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
	}
	return files
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
