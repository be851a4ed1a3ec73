package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize console logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWithFormat("json"); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWithFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf).Named("ranking").Named("band")

	l.Info(context.Background(), "recomputed",
		String("band", "1-room_1800-1900"),
		Int("items", 3),
		Int64("listing_id", 42),
		Float64("rating", 1512.5),
		Error(errors.New("boom")),
	)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if line["message"] != "recomputed" {
		t.Errorf("unexpected message: %v", line["message"])
	}
	if line["component"] != "ranking.band" {
		t.Errorf("unexpected component: %v", line["component"])
	}
	if line["band"] != "1-room_1800-1900" {
		t.Errorf("unexpected band: %v", line["band"])
	}
	if line["items"] != float64(3) {
		t.Errorf("unexpected items: %v", line["items"])
	}
	if line["error"] != "boom" {
		t.Errorf("unexpected error field: %v", line["error"])
	}
	if _, ok := line["source"]; !ok {
		t.Error("missing source field")
	}
}

func TestSetLevelString(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "", "WARN", "warning", "error"} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q: %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}

	var buf bytes.Buffer
	l := New(&buf)
	if err := SetLevelString("warn"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = SetLevelString("info") }()
	l.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Errorf("info line should be filtered at warn level: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Warn(context.Background(), "ignored", String("k", "v"))
	if l.Named("x") == nil {
		t.Fatal("named nop logger is nil")
	}
}
