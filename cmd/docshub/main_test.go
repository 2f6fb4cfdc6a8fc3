package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docshub/api/internal/app"
	"docshub/api/internal/auth"
	"docshub/api/internal/store"
)

func startServer(t *testing.T) string {
	t.Helper()
	db, err := store.OpenBadger("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := app.New(app.Deps{
		Store:  db,
		Tokens: auth.NewAuthenticator("test-secret", time.Hour),
		Logger: zerolog.Nop(),
	})
	server := httptest.NewServer(app.NewHTTPServer(svc, "*").Handler())
	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})
	return server.URL
}

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("docshub %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestCommandsAgainstServer(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCSHUB_AUTOSAVE_MS", "20")
	url := startServer(t)
	server := "--server=" + url

	if out := execute(t, "", "signup", "avery", "--password=secret123", server); !strings.Contains(out, "User created successfully") {
		t.Fatalf("unexpected signup output %q", out)
	}
	token, err := readToken()
	if err != nil || token == "" {
		t.Fatalf("expected remembered token, got %q %v", token, err)
	}

	out := execute(t, "", "projects", "create", "Payments", server)
	start, end := strings.LastIndex(out, "("), strings.LastIndex(out, ")")
	if start < 0 || end <= start {
		t.Fatalf("unexpected create output %q", out)
	}
	projectID := out[start+1 : end]

	if out := execute(t, "", "projects", server); !strings.Contains(out, "Payments") || !strings.Contains(out, "*") {
		t.Fatalf("expected current project listed, got %q", out)
	}

	execute(t, "# APIs\n\nGateway routes.", "write", projectID, "apis", "--file=-", server)

	outDir := t.TempDir()
	execute(t, "", "export", projectID, "apis", "--out="+outDir, server)
	data, err := os.ReadFile(filepath.Join(outDir, "APIs_apis.md"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "# APIs\n\nGateway routes." {
		t.Fatalf("unexpected export %q", data)
	}

	if out := execute(t, "", "search", projectID, "gateway", server); !strings.Contains(out, "apis") {
		t.Fatalf("expected search hit, got %q", out)
	}

	execute(t, "", "logout", server)
	if _, err := readToken(); !os.IsNotExist(err) {
		t.Fatalf("expected token removed, got %v", err)
	}
}
