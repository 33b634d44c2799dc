package migrations

import (
	"io"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected first version 1, got %d", version)
	}

	up, _, err := src.ReadUp(version)
	if err != nil {
		t.Fatalf("read up: %v", err)
	}
	defer up.Close()
	body, err := io.ReadAll(up)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, table := range []string{"`user`", "`payment`", "`debt_relation`", "`outbox_message`"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("expected %s to be created", table)
		}
	}
	if !strings.Contains(string(body), "ON DELETE CASCADE") {
		t.Fatalf("expected cascading delete on debt_relation")
	}

	down, _, err := src.ReadDown(version)
	if err != nil {
		t.Fatalf("read down: %v", err)
	}
	_ = down.Close()
}
