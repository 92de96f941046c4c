package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ksync "github.com/mschirtzinger/khata/internal/sync"
)

func TestCommandTree(t *testing.T) {
	want := []string{
		"login", "logout", "sync", "status", "daemon", "store-name",
		"customer add", "customer edit", "customer list", "customer show",
		"customer delete", "customer restore", "customer purge", "customer delete-all",
		"txn add", "txn delete", "txn restore", "txn purge", "txn delete-all",
		"trash list", "trash purge-expired", "trash empty",
		"summary", "config show",
	}
	for _, path := range want {
		cmd, rest, err := rootCmd.Find(strings.Fields(path))
		if err != nil || len(rest) != 0 {
			t.Errorf("command %q not found: %v", path, err)
			continue
		}
		if cmd.Short == "" {
			t.Errorf("command %q has no short description", path)
		}
	}
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "oauth:\n  client_secret: s3cret\nstore:\n  name: Sharma General Store\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "show", "--config", path, "--format", "toml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	text := out.String()
	if strings.Contains(text, "s3cret") {
		t.Errorf("secret leaked:\n%s", text)
	}
	if !strings.Contains(text, "Sharma General Store") {
		t.Errorf("store name missing:\n%s", text)
	}
}

func TestLoadWarning(t *testing.T) {
	tests := []struct {
		name string
		lr   ksync.LoadResult
		want string
	}{
		{"auth", ksync.LoadResult{Outcome: ksync.AuthRequired}, "khata login"},
		{"unavailable", ksync.LoadResult{Outcome: ksync.RemoteUnavailable, RemoteErr: errors.New("503")}, "503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loadWarning(tt.lr); !strings.Contains(got, tt.want) {
				t.Errorf("loadWarning() = %q, want containing %q", got, tt.want)
			}
		})
	}
}
