package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetURL_AbsoluteAndRelative(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := NewLocalStorage(tmpDir, "/files", "http://example.com:8060/")
	if err != nil {
		t.Fatalf("failed create storage: %v", err)
	}

	got := c.GetURL("a.xlsx")
	want := "http://example.com:8060/files/a.xlsx"
	if got != want {
		t.Fatalf("expected %s; got %s", want, got)
	}

	c2, _ := NewLocalStorage(tmpDir, "files/", "")
	if got2 := c2.GetURL("b.xlsx"); got2 != "/files/b.xlsx" {
		t.Fatalf("expected /files/b.xlsx; got %s", got2)
	}
}

func TestStoreAndServeFile(t *testing.T) {
	tmpDir := t.TempDir()
	c, err := NewLocalStorage(tmpDir, "/files", "")
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}

	content := []byte("defaulters")
	saved, err := c.Store(context.Background(), "defaulters 7A.xlsx", content)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasSuffix(saved.URL, saved.Name) {
		t.Fatalf("url %q does not point at %q", saved.URL, saved.Name)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/files/")
		path, ok := c.Resolve(name)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+OriginalName(name)+"\"")
		http.ServeFile(w, r, path)
	})

	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + saved.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bad status: %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "defaulters 7A.xlsx") {
		t.Fatalf("expected Content-Disposition with original filename, got %s", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(content) {
		t.Fatalf("content mismatch: %s", string(body))
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	tmpDir := t.TempDir()
	c, _ := NewLocalStorage(filepath.Join(tmpDir, "exports"), "", "")

	secret := filepath.Join(tmpDir, "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "../secret.txt", "..", ".hidden", "a/b.xlsx"} {
		if _, ok := c.Resolve(name); ok {
			t.Errorf("Resolve(%q) should be rejected", name)
		}
	}
}

func TestCleanupOlderThan(t *testing.T) {
	tmpDir := t.TempDir()
	c, _ := NewLocalStorage(tmpDir, "", "")

	old, _ := c.Store(context.Background(), "old.xlsx", []byte("1"))
	fresh, _ := c.Store(context.Background(), "fresh.xlsx", []byte("2"))

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(tmpDir, old.Name), past, past); err != nil {
		t.Fatal(err)
	}

	if err := c.CleanupOlderThan(30 * time.Minute); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, ok := c.Resolve(old.Name); ok {
		t.Error("old export should be removed")
	}
	if _, ok := c.Resolve(fresh.Name); !ok {
		t.Error("fresh export should be kept")
	}
}
