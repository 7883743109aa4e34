package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"first\nsecond", 10, "first"},
		{"abcdefghij", 5, "abcd…"},
		{"ñandú ñandú", 6, "ñandú…"},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in, tt.limit); got != tt.want {
			t.Errorf("firstLine(%q, %d): Expected %q, but got %q", tt.in, tt.limit, tt.want, got)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), "frobnicate", nil, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Expected an unknown command error, but got %v", err)
	}
}

func TestRunDeckCreateAndList(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "recall.db")
	args := []string{"--db-dsn", dsn, "--env-file", ""}

	var out bytes.Buffer
	if err := run(ctx, "deck", append(append([]string{}, args...), "create", "spanish", "verbs"), &out); err != nil {
		t.Fatalf("Expected deck create to succeed, but got %v", err)
	}
	if !strings.Contains(out.String(), "Created deck spanish verbs") {
		t.Errorf("Expected a confirmation, but got %q", out.String())
	}

	out.Reset()
	if err := run(ctx, "deck", append(append([]string{}, args...), "list"), &out); err != nil {
		t.Fatalf("Expected deck list to succeed, but got %v", err)
	}
	if !strings.Contains(out.String(), "spanish verbs") {
		t.Errorf("Expected the new deck in the listing, but got %q", out.String())
	}

	out.Reset()
	if err := run(ctx, "due", append(append([]string{}, args...), "spanish verbs"), &out); err != nil {
		t.Fatalf("Expected due to succeed, but got %v", err)
	}
	if !strings.HasPrefix(out.String(), "0 cards in the next srs session of spanish verbs") {
		t.Errorf("Expected an empty session, but got %q", out.String())
	}
}
