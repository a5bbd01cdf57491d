package csvbackend

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/storage"
)

func TestCSVBackend_RoundTrip(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "results.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	results := []serp.Result{
		{Title: `Quoted "title", with comma`, URL: "https://a.example/?x=1&y=2", Caption: serp.Caption("line one\nline two")},
		{Title: "No caption", URL: "https://b.example"},
		{Title: "Empty caption", URL: "https://c.example", Caption: serp.Caption("")},
	}

	if err := b.Save(context.Background(), &storage.Run{Results: results}); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	got, err := Load(filePath)
	if err != nil {
		t.Fatalf("Failed to load file: %v", err)
	}
	if len(got) != len(results) {
		t.Fatalf("Expected %d results, got %d", len(results), len(got))
	}
	for i := range results {
		if got[i].Title != results[i].Title || got[i].URL != results[i].URL {
			t.Errorf("position %d: expected %+v, got %+v", i, results[i], got[i])
		}
		if got[i].HasCaption() != results[i].HasCaption() || got[i].CaptionText() != results[i].CaptionText() {
			t.Errorf("position %d: caption mismatch", i)
		}
	}
}

func TestCSVBackend_OverwritesAndHeader(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "results.csv")
	b, _ := New(filePath)
	ctx := context.Background()

	if err := b.Save(ctx, &storage.Run{Results: []serp.Result{{Title: "old", URL: "u1"}, {Title: "old2", URL: "u2"}}}); err != nil {
		t.Fatalf("Failed to save first run: %v", err)
	}
	if err := b.Save(ctx, &storage.Run{Results: []serp.Result{{Title: "new", URL: "u3"}}}); err != nil {
		t.Fatalf("Failed to save second run: %v", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	want := "title,url,caption,has_caption\nnew,u3,,false\n"
	if string(data) != want {
		t.Errorf("Expected %q, got %q", want, data)
	}
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if buf.String() != "title,url,caption,has_caption\n" {
		t.Errorf("Expected header only, got %q", buf.String())
	}
}

func TestCSVBackend_UnwritablePath(t *testing.T) {
	b, _ := New(filepath.Join(t.TempDir(), "nope", "results.csv"))
	if err := b.Save(context.Background(), &storage.Run{}); err == nil {
		t.Error("Expected error writing into a missing directory")
	}
}
