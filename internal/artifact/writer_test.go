package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev1", "20240115_summary.csv")

	err := WriteFile(path, func(w io.Writer) error {
		_, err := fmt.Fprint(w, "Frequency (GHz)\n0.0081\n")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "Frequency (GHz)\n0.0081\n" {
		t.Errorf("Unexpected content %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected only the artifact in the directory, found %d entries", len(entries))
	}
}

func TestWriteFile_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20240115_matrix.csv")
	boom := errors.New("disk full")

	err := WriteFile(path, func(w io.Writer) error {
		fmt.Fprint(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped write error, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected empty directory after failed write, found %d entries", len(entries))
	}
}

func TestWriteFile_KeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary-20240115.csv")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	_ = WriteFile(path, func(w io.Writer) error {
		return errors.New("boom")
	})

	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("Expected previous artifact untouched, got %q", data)
	}
}

func TestSet_Remove(t *testing.T) {
	dir := t.TempDir()
	var set Set

	for _, name := range []string{"a.csv", "b.csv"} {
		err := set.Write(filepath.Join(dir, name), func(w io.Writer) error {
			_, err := fmt.Fprint(w, name)
			return err
		})
		if err != nil {
			t.Fatalf("Write %s failed: %v", name, err)
		}
	}

	if len(set.Paths()) != 2 {
		t.Fatalf("Expected 2 paths, got %d", len(set.Paths()))
	}

	if err := set.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected all artifacts removed, found %d entries", len(entries))
	}
	if len(set.Paths()) != 0 {
		t.Error("Expected set to be empty after Remove")
	}
}
