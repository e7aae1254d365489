package patch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return name
}

func TestPreview_ReplaceLine(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "f.txt", "line one\nline two\nline three\n")

	h := HashLine(2, "line two")
	diff, err := Parse("2:" + h + "| -line two\n2:" + h + "| +line TWO")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	res, err := Preview(dir, name, OpUpdate, diff, DefaultFuzzyConfig, "")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := "line one\nline TWO\nline three\n"
	if res.NewContent != want {
		t.Errorf("NewContent = %q, want %q", res.NewContent, want)
	}
	if res.Subtypes[EditReplaceLine] != 1 {
		t.Errorf("Subtypes = %+v, want replaceLine=1", res.Subtypes)
	}
}

func TestPreview_AnchorMismatch(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "f.txt", "line one\nline two\n")

	h := HashLine(2, "wrong body")
	diff, err := Parse("2:" + h + "| -wrong body")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	_, err = Preview(dir, name, OpUpdate, diff, DefaultFuzzyConfig, "")
	if _, ok := err.(*AnchorMismatch); !ok {
		t.Fatalf("expected *AnchorMismatch, got %T: %v", err, err)
	}
}

func TestPreview_FileMissing(t *testing.T) {
	dir := t.TempDir()
	diff, _ := Parse("+new line")
	_, err := Preview(dir, "nope.txt", OpUpdate, diff, DefaultFuzzyConfig, "")
	if _, ok := err.(*FileMissing); !ok {
		t.Fatalf("expected *FileMissing, got %T: %v", err, err)
	}
}

func TestPreview_Create(t *testing.T) {
	dir := t.TempDir()
	diff, _ := Parse("+hello\n+world")
	res, err := Preview(dir, "new.txt", OpCreate, diff, DefaultFuzzyConfig, "")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if res.NewContent != "hello\nworld\n" {
		t.Errorf("NewContent = %q", res.NewContent)
	}
}

func TestPreview_NoChange(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "f.txt", "same\n")
	h := HashLine(1, "same")
	diff, _ := Parse("1:" + h + "|same")
	_, err := Preview(dir, name, OpUpdate, diff, DefaultFuzzyConfig, "")
	if !IsNoChange(err) {
		t.Fatalf("expected NoChange, got %v", err)
	}
}

func TestPreview_FuzzyAnchorMatches(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "f.txt", "line one\nline too\nline three\n")

	// Stale hash (as if the body used to be "line two") but within fuzzy
	// distance of the file's actual current line, "line too".
	staleHash := HashLine(2, "line two")
	diff, err := Parse("2:" + staleHash + "| -line two\n2:" + staleHash + "| +line TWO")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	fuzzy := FuzzyConfig{Enabled: true, Window: 2, Threshold: 2}
	res, err := Preview(dir, name, OpUpdate, diff, fuzzy, "")
	if err != nil {
		t.Fatalf("Preview with fuzzy: %v", err)
	}
	want := "line one\nline TWO\nline three\n"
	if res.NewContent != want {
		t.Errorf("NewContent = %q, want %q", res.NewContent, want)
	}
}

func TestApply_WritesAtomically(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "f.txt", "alpha\nbeta\n")

	h := HashLine(1, "alpha")
	diff, _ := Parse("1:" + h + "| -alpha\n1:" + h + "| +ALPHA")

	res, err := Apply(dir, name, OpUpdate, diff, DefaultFuzzyConfig, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(onDisk) != res.NewContent {
		t.Errorf("on-disk content = %q, want %q", onDisk, res.NewContent)
	}
	if _, err := os.Stat(filepath.Join(dir, name+".tmp")); !os.IsNotExist(err) {
		t.Errorf("expected .tmp file to be gone after rename, stat err = %v", err)
	}
}

func TestApply_Delete(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "gone.txt", "bye\n")

	diff, _ := Parse("-bye")
	if _, err := Apply(dir, name, OpDelete, diff, DefaultFuzzyConfig, ""); err != nil {
		t.Fatalf("Apply delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
}

func TestApply_RenameMovesAndEdits(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "old.txt", "alpha\nbeta\n")

	h := HashLine(1, "alpha")
	diff, _ := Parse("1:" + h + "| -alpha\n1:" + h + "| +ALPHA")

	res, err := Apply(dir, name, OpRename, diff, DefaultFuzzyConfig, "new.txt")
	if err != nil {
		t.Fatalf("Apply rename: %v", err)
	}
	if res.NewContent != "ALPHA\nbeta\n" {
		t.Errorf("NewContent = %q", res.NewContent)
	}
	if _, err := os.Stat(filepath.Join(dir, "old.txt")); !os.IsNotExist(err) {
		t.Errorf("expected old path removed, stat err = %v", err)
	}
	onDisk, err := os.ReadFile(filepath.Join(dir, "new.txt"))
	if err != nil {
		t.Fatalf("ReadFile new.txt: %v", err)
	}
	if string(onDisk) != res.NewContent {
		t.Errorf("new.txt content = %q, want %q", onDisk, res.NewContent)
	}
}

func TestPreview_RenameWithoutDestinationFails(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "f.txt", "a\n")
	diff, _ := Parse("1:" + HashLine(1, "a") + "|a")
	if _, err := Preview(dir, name, OpRename, diff, DefaultFuzzyConfig, ""); err == nil {
		t.Fatal("expected an error when renameTo is empty")
	}
}

func TestCheckPartial(t *testing.T) {
	cached := "line one\nline two\nline three\n"

	if !CheckPartial(cached, "2:"+HashLine(2, "line two")+"| -line two") {
		t.Error("expected true for a removal line present in cached content")
	}
	if CheckPartial(cached, "-line that does not exist") {
		t.Error("expected false for a removal line absent from cached content")
	}
	if !CheckPartial(cached, "+brand new line") {
		t.Error("add-only partial diffs should never fail the check")
	}
}

func TestCache_GetAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	name := writeTemp(t, dir, "c.txt", "cached content\n")

	c := NewCache()
	got, err := c.Get(dir, name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "cached content\n" {
		t.Errorf("Get = %q", got)
	}

	// Mutate on disk; cached value should still be served until invalidated.
	if err := os.WriteFile(filepath.Join(dir, name), []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got2, _ := c.Get(dir, name)
	if got2 != "cached content\n" {
		t.Errorf("expected stale cached value, got %q", got2)
	}

	c.Invalidate(name)
	got3, err := c.Get(dir, name)
	if err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if got3 != "changed\n" {
		t.Errorf("expected fresh value after invalidate, got %q", got3)
	}
}
