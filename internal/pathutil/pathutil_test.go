package pathutil

import "testing"

func TestIsEligible(t *testing.T) {
	cases := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"/tmp/w/a.txt", false, true},
		{"/tmp/w/sub", true, false},
		{"/tmp/w/a.txt~", false, false},
		{"/tmp/w/.a.txt.swp", false, false},
		{"/tmp/w/draft.tmp", false, false},
	}
	for _, c := range cases {
		if got := IsEligible(c.path, c.isDir); got != c.want {
			t.Errorf("IsEligible(%q, %v) = %v, want %v", c.path, c.isDir, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		`a\b\c`,
		`./a/b`,
		`a/b/c`,
		`.\a\b`,
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
		if containsBackslash(once) {
			t.Errorf("Normalize(%q) = %q still contains backslash", in, once)
		}
		if len(once) >= 2 && once[:2] == "./" {
			t.Errorf("Normalize(%q) = %q still has leading ./", in, once)
		}
	}
}

func containsBackslash(s string) bool {
	for _, r := range s {
		if r == '\\' {
			return true
		}
	}
	return false
}

func TestToScopePath(t *testing.T) {
	got, err := ToScopePath("/Users/me/Music", "/Users/me/Music", "/Users/me/Music/sub/b.txt")
	if err != nil {
		t.Fatal(err)
	}
	want := "/Users/me/Music/sub/b.txt"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestToScopePathPreservesSuppliedSpelling(t *testing.T) {
	// Canonical root differs from supplied (symlink resolution, trailing
	// slash, case). The scope path must be rooted under the SUPPLIED form.
	got, err := ToScopePath("~/Music", "/Users/me/Music", "/Users/me/Music/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	want := "~/Music/a.txt"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
