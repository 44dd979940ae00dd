package token

import (
	"path/filepath"
	"testing"
	"time"

	"Syncd/internal/model"
)

func TestURLRoundTrip(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "syncd"))
	if err := d.SaveURL("https://sync.example.com"); err != nil {
		t.Fatal(err)
	}
	got, err := d.LoadURL()
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://sync.example.com" {
		t.Errorf("got %q", got)
	}
}

func TestLoadURLMissing(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "syncd"))
	if _, err := d.LoadURL(); err == nil {
		t.Error("expected error for unconfigured store")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "syncd"))
	ts := model.TokenState{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	if err := d.SaveTokens(ts); err != nil {
		t.Fatal(err)
	}
	got, err := d.LoadTokens()
	if err != nil {
		t.Fatal(err)
	}
	if got != ts {
		t.Errorf("got %+v want %+v", got, ts)
	}
}

func TestLoadTokensMissing(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "syncd"))
	if _, err := d.LoadTokens(); err == nil {
		t.Error("expected error when not logged in")
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []struct {
		name string
		exp  int64
		want bool
	}{
		{"well in future", now.Add(time.Hour).Unix(), false},
		{"already past", now.Add(-time.Second).Unix(), true},
		{"within skew window", now.Add(3 * time.Second).Unix(), true},
	}
	for _, c := range cases {
		ts := model.TokenState{ExpiresAt: c.exp}
		if got := IsExpired(ts, now); got != c.want {
			t.Errorf("%s: IsExpired = %v, want %v", c.name, got, c.want)
		}
	}
}
