package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/config"
	"github.com/talgya/atlas-live/internal/entropy"
	"github.com/talgya/atlas-live/internal/ledger"
	"github.com/talgya/atlas-live/internal/persistence"
)

// execRoot runs the root command with args and returns stdout.
func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "atlas.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Fatalf("parseLevel(%q) err = %v", tt.in, err)
		}
		if !tt.err && got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigCmd_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"yaml", "heartbeat:"},
		{"toml", "[heartbeat]"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := execRoot(t, "config", "--format", tt.format)
			if err != nil {
				t.Fatalf("config: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Fatalf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestConfigCmd_UnknownFormat(t *testing.T) {
	if _, err := execRoot(t, "config", "--format", "json"); err == nil {
		t.Fatal("expected error for json format")
	}
}

func TestConfigCmd_ReadsFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "api:\n  port: 9191\n")
	out, err := execRoot(t, "--config", path, "config")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "port: 9191") {
		t.Fatalf("file value not applied:\n%s", out)
	}
}

func TestRootCmd_BadLogLevel(t *testing.T) {
	if _, err := execRoot(t, "--log-level", "loud", "config"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestDiaryCmd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "atlas.db")

	db, err := persistence.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for day := 1; day <= 2; day++ {
		_, err := db.AppendVisit(ctx, "jp", ledger.VisitRecord{
			ID:        fmt.Sprintf("v%d", day),
			Day:       day,
			Theme:     "HISTORY",
			Content:   fmt.Sprintf("Day %d in Japan.", day),
			LocalTime: "21:00",
			VisitedAt: time.Now().Add(-time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	path := writeConfig(t, dir, "storage:\n  path: "+dbPath+"\n")

	out, err := execRoot(t, "--config", path, "diary")
	if err != nil {
		t.Fatalf("diary: %v", err)
	}
	for _, want := range []string{"jp", "2 visits", "Day 1 in Japan.", "day 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("diary missing %q:\n%s", want, out)
		}
	}

	out, err = execRoot(t, "--config", path, "diary", "--country", "pt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No visits recorded.") {
		t.Fatalf("unvisited country output:\n%s", out)
	}
}

func TestWriteDiary(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	writeDiary(&buf, []ledger.CountryMemory{{
		EntityID:    "pe",
		TotalVisits: 1,
		LastVisit:   now.Add(-2 * time.Hour),
		Visits: []ledger.VisitRecord{{
			Day:       1,
			Theme:     "CULTURE",
			LocalTime: "07:00",
			Content:   strings.Repeat("x", 100),
		}},
	}}, now)

	out := buf.String()
	if !strings.Contains(out, "1 visit,") || !strings.Contains(out, "2 hours ago") {
		t.Fatalf("header = %q", out)
	}
	if !strings.Contains(out, strings.Repeat("x", diaryContentWidth)+"...") {
		t.Fatalf("content not truncated: %q", out)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{strings.Repeat("a", 59) + "ção e mais", 60, strings.Repeat("a", 59) + "ç..."},
		{"São Tomé", 8, "São Tomé"},
		{"日本の島々", 2, "日本..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestWire(t *testing.T) {
	db, err := persistence.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.Default()
	st, err := wire(cfg, db, entropy.NewSeeded(1))
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	if st.server.Port != cfg.API.Port || st.server.Hub == nil {
		t.Fatalf("server not wired: %+v", st.server)
	}
	if got := st.router.Bag().SeedCount(); got != len(cfg.Dialogue.Seeds) {
		t.Fatalf("seeds = %d, want %d", got, len(cfg.Dialogue.Seeds))
	}
	if snap := st.sched.Snapshot(); snap.Status != broadcast.StatusIdle {
		t.Fatalf("status = %s", snap.Status)
	}

	next := config.Default()
	next.Dialogue.Seeds = next.Dialogue.Seeds[:1]
	st.reload(next)
	if got := st.router.Bag().SeedCount(); got != 1 {
		t.Fatalf("seeds after reload = %d", got)
	}
}

func TestWire_NoCountries(t *testing.T) {
	db, err := persistence.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.Default()
	cfg.Countries = nil
	if _, err := wire(cfg, db, entropy.NewSeeded(1)); err == nil {
		t.Fatal("expected error without countries")
	}
}
