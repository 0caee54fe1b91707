package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"report-sync/internal/lms"
)

// fakeLMS is a minimal in-memory platform: one known user ("alice", id 42),
// lazily created folders, and a configurable ticket-phase status.
type fakeLMS struct {
	srv *httptest.Server

	ticketStatus int // 0 means issue a ticket normally
	uploads      int
	quotaCalls   int

	nextFolderID int
	folders      map[string][]map[string]any // parent key -> children
}

func newFakeLMS(t *testing.T) *fakeLMS {
	f := &fakeLMS{ticketStatus: 0, nextFolderID: 500, folders: map[string][]map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/self/users", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search_term") == "alice" {
			json.NewEncoder(w).Encode([]map[string]any{{"id": 42, "name": "Alice"}})
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/v1/users/42/files/quota", func(w http.ResponseWriter, r *http.Request) {
		f.quotaCalls++
		w.Write([]byte(`{"quota": 1048576, "quota_used": 2097152}`))
	})
	mux.HandleFunc("/api/v1/users/42/folders", func(w http.ResponseWriter, r *http.Request) {
		f.serveFolders(w, r, "root")
	})
	mux.HandleFunc("/api/v1/folders/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 5 {
			http.NotFound(w, r)
			return
		}
		switch parts[4] {
		case "folders":
			f.serveFolders(w, r, parts[3])
		case "files":
			if f.ticketStatus != 0 {
				w.WriteHeader(f.ticketStatus)
				w.Write([]byte(`{"message":"storage quota exceeded"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"upload_url":    f.srv.URL + "/upload_target",
				"upload_params": map[string]string{"key": "k"},
			})
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/upload_target", func(w http.ResponseWriter, r *http.Request) {
		f.uploads++
		w.WriteHeader(http.StatusCreated)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLMS) serveFolders(w http.ResponseWriter, r *http.Request, parent string) {
	if r.Method == http.MethodPost {
		r.ParseForm()
		f.nextFolderID++
		folder := map[string]any{"id": f.nextFolderID, "name": r.PostFormValue("name")}
		f.folders[parent] = append(f.folders[parent], folder)
		json.NewEncoder(w).Encode(folder)
		return
	}
	children := f.folders[parent]
	if children == nil {
		children = []map[string]any{}
	}
	json.NewEncoder(w).Encode(children)
}

func (f *fakeLMS) dispatcher(t *testing.T, semesterDir, exceededDir string) *Dispatcher {
	client := lms.New(f.srv.URL, "tok", zap.NewNop())
	return New(client, semesterDir, exceededDir, "Evaluation Reports/2024 Fall", zap.NewNop())
}

func stage(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("%PDF "+n), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunSkipsUnresolvedRecipients(t *testing.T) {
	f := newFakeLMS(t)
	semester := t.TempDir()
	exceeded := t.TempDir()
	stage(t, semester, "report_alice.pdf", "report_bob.pdf")

	d := f.dispatcher(t, semester, exceeded)
	d.Run(context.Background(), []string{"alice", "bob"})

	if f.uploads != 1 {
		t.Errorf("expected exactly 1 upload (alice only), got %d", f.uploads)
	}
	// bob's file stays in the staging directory, untouched.
	if _, err := os.Stat(filepath.Join(semester, "report_bob.pdf")); err != nil {
		t.Errorf("bob's file should remain staged: %v", err)
	}
	// alice's file stays too: success does not remove or mark it.
	if _, err := os.Stat(filepath.Join(semester, "report_alice.pdf")); err != nil {
		t.Errorf("alice's file should remain staged after upload: %v", err)
	}
	if f.quotaCalls != 0 {
		t.Errorf("quota must not be queried when uploads succeed, got %d calls", f.quotaCalls)
	}
}

func TestRunQuarantinesRejectedFile(t *testing.T) {
	f := newFakeLMS(t)
	f.ticketStatus = http.StatusInsufficientStorage
	semester := t.TempDir()
	exceeded := t.TempDir()
	stage(t, semester, "report_alice.pdf")

	d := f.dispatcher(t, semester, exceeded)
	d.Run(context.Background(), []string{"alice"})

	moved := filepath.Join(exceeded, "file_storage_exceeded_alice", "report_alice.pdf")
	if _, err := os.Stat(moved); err != nil {
		t.Errorf("expected file relocated to %s: %v", moved, err)
	}
	if _, err := os.Stat(filepath.Join(semester, "report_alice.pdf")); !os.IsNotExist(err) {
		t.Error("original staged file should no longer exist")
	}
	if f.uploads != 0 {
		t.Errorf("binary phase must not run after ticket rejection, got %d", f.uploads)
	}
	if f.quotaCalls != 1 {
		t.Errorf("expected 1 diagnostic quota call, got %d", f.quotaCalls)
	}
}

func TestRunMatchesOnlyRecipientPDFs(t *testing.T) {
	f := newFakeLMS(t)
	semester := t.TempDir()
	stage(t, semester, "report_alice.pdf", "final report_alice.pdf", "report_alice.txt", "report_malice2.pdf")

	d := f.dispatcher(t, semester, t.TempDir())
	files, err := d.recipientFiles("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("expected the two alice PDFs, got %v", files)
	}
	for _, name := range files {
		if !strings.Contains(name, "alice.pdf") {
			t.Errorf("unexpected match %q", name)
		}
	}
}
