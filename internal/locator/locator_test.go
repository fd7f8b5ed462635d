package locator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/home/user/project", "-home-user-project"},
		{"/home/user/my_project", "-home-user-my-project"},
		{"/tmp/test", "-tmp-test"},
		{"/tmp/test/", "-tmp-test"}, // trailing separator normalizes away
	}
	for _, tt := range tests {
		if got := Encode(tt.input); got != tt.want {
			t.Errorf("Encode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a := Encode("/home/user/project")
	b := Encode("/home/user/project")
	if a != b {
		t.Errorf("Encode not deterministic: %q vs %q", a, b)
	}
}

func TestResolveSessionDirectoryPredicted(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, Encode("/home/user/proj"))
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}

	got := ResolveSessionDirectory(root, "", "/home/user/proj")
	if got != dir {
		t.Errorf("ResolveSessionDirectory = %q, want %q", got, dir)
	}
}

func TestResolveSessionDirectoryCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "-home-user-PROJ")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}

	got := ResolveSessionDirectory(root, "", "/home/user/proj")
	if got != dir {
		t.Errorf("ResolveSessionDirectory = %q, want %q", got, dir)
	}
}

func TestResolveSessionDirectorySuffix(t *testing.T) {
	root := t.TempDir()
	// Same workspace reached through a different mount point.
	dir := filepath.Join(root, "-mnt-shared-home-user-proj")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}

	got := ResolveSessionDirectory(root, "", "/home/user/proj")
	if got != dir {
		t.Errorf("ResolveSessionDirectory = %q, want %q", got, dir)
	}
}

func TestResolveSessionDirectoryScratch(t *testing.T) {
	root := t.TempDir()
	scratch := t.TempDir()

	// The scratch location knows the name; the primary root holds the
	// actual session directory under that name.
	name := "-var-builds-proj"
	if err := os.Mkdir(filepath.Join(scratch, name), 0755); err != nil {
		t.Fatal(err)
	}
	primary := filepath.Join(root, name)
	if err := os.Mkdir(primary, 0755); err != nil {
		t.Fatal(err)
	}

	got := ResolveSessionDirectory(root, scratch, "/var/builds/proj")
	if got != primary {
		t.Errorf("ResolveSessionDirectory = %q, want %q", got, primary)
	}
}

func TestResolveSessionDirectoryNotFound(t *testing.T) {
	if got := ResolveSessionDirectory(t.TempDir(), "", "/no/such/workspace"); got != "" {
		t.Errorf("ResolveSessionDirectory = %q, want empty", got)
	}
	if got := ResolveSessionDirectory("/nonexistent-root", "", "/home/user/proj"); got != "" {
		t.Errorf("ResolveSessionDirectory with missing root = %q, want empty", got)
	}
}

func writeSession(t *testing.T, dir, name, content string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindActiveSessionPrefersActiveWindow(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	// Recently active but modified before the stale file.
	active := writeSession(t, dir, "active.jsonl", "{}\n", now.Add(-2*time.Minute))
	// Outside the active window, even though "most recent" among stale files.
	writeSession(t, dir, "stale.jsonl", "{}\n", now.Add(-3*time.Hour))

	got := FindActiveSession(dir, 5*time.Minute)
	if got != active {
		t.Errorf("FindActiveSession = %q, want %q", got, active)
	}
}

func TestFindActiveSessionSkipsEmpty(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	writeSession(t, dir, "empty.jsonl", "", now)
	older := writeSession(t, dir, "older.jsonl", "{}\n", now.Add(-time.Minute))

	got := FindActiveSession(dir, 5*time.Minute)
	if got != older {
		t.Errorf("FindActiveSession = %q, want %q", got, older)
	}
}

func TestFindActiveSessionEmptyDir(t *testing.T) {
	if got := FindActiveSession(t.TempDir(), 5*time.Minute); got != "" {
		t.Errorf("FindActiveSession on empty dir = %q, want empty", got)
	}
	if got := FindActiveSession("/nonexistent", 5*time.Minute); got != "" {
		t.Errorf("FindActiveSession on missing dir = %q, want empty", got)
	}
}

func TestFindAllSessionsSortedByModTime(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	old := writeSession(t, dir, "old.jsonl", "{}\n", now.Add(-2*time.Hour))
	recent := writeSession(t, dir, "recent.jsonl", "{}\n", now)
	writeSession(t, dir, "notes.txt", "x", now) // ignored: wrong extension

	got := FindAllSessions(dir)
	if len(got) != 2 {
		t.Fatalf("FindAllSessions returned %d files, want 2", len(got))
	}
	if got[0] != recent || got[1] != old {
		t.Errorf("FindAllSessions order = %v, want [%s %s]", got, recent, old)
	}
}

func TestSessionID(t *testing.T) {
	id := SessionID("/root/.claude/projects/-home-user-proj/abc-123.jsonl")
	if id != "abc-123" {
		t.Errorf("SessionID = %q, want %q", id, "abc-123")
	}
}
