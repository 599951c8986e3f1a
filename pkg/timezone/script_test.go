package timezone

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.yaml")
	content := "fallback: UTC\nanswers:\n  - timezone: US/Eastern\n  - timezone: US/Central\n    dst: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadScript(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Answer{{Timezone: "US/Eastern"}, {Timezone: "US/Central", DSTShift: true}}
	if !reflect.DeepEqual(p.Answers, want) {
		t.Fatalf("want: %#v\ngot:  %#v", want, p.Answers)
	}

	ctx := context.Background()
	for range want {
		if _, err := p.Ask(ctx, Prompt{}); err != nil {
			t.Fatal(err)
		}
	}
	if a, err := p.Ask(ctx, Prompt{}); err != nil || a.Timezone != "UTC" {
		t.Fatalf("expected the fallback, got %#v, %v", a, err)
	}
}

func TestLoadScript_Missing(t *testing.T) {
	if _, err := LoadScript(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing answers file")
	}
}
