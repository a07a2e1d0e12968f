package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/projecteru2/remote/lock/flock"
	"github.com/projecteru2/remote/storage"
)

type doc struct {
	Active string            `json:"active" yaml:"active"`
	Items  map[string]string `json:"items" yaml:"items"`
}

func (d *doc) Init() {
	if d.Items == nil {
		d.Items = map[string]string{}
	}
}

func newStore(t *testing.T, name string) *Store[doc] {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	return New[doc](path, flock.New(path+".lock", 0))
}

// --- load ---

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s := newStore(t, "missing.yaml")
	err := s.With(context.Background(), func(d *doc) error {
		if d.Items == nil {
			t.Error("expected Init to allocate Items")
		}
		if len(d.Items) != 0 || d.Active != "" {
			t.Errorf("expected empty doc, got %+v", d)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("With must not create the file")
	}
}

func TestStore_BlankFileIsEmpty(t *testing.T) {
	s := newStore(t, "blank.yaml")
	if err := os.WriteFile(s.Path(), []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.With(context.Background(), func(*doc) error { return nil }); err != nil {
		t.Fatalf("expected blank file to load, got %v", err)
	}
}

func TestStore_CorruptFileLeftUntouched(t *testing.T) {
	for _, name := range []string{"bad.yaml", "bad.json"} {
		s := newStore(t, name)
		garbage := []byte("{{{ not a document")
		if err := os.WriteFile(s.Path(), garbage, 0o600); err != nil {
			t.Fatal(err)
		}
		err := s.Update(context.Background(), func(d *doc) error {
			d.Active = "x"
			return nil
		})
		if !errors.Is(err, storage.ErrCorrupt) {
			t.Errorf("%s: expected ErrCorrupt, got %v", name, err)
		}
		data, _ := os.ReadFile(s.Path())
		if string(data) != string(garbage) {
			t.Errorf("%s: corrupt file was modified", name)
		}
	}
}

func TestStore_UnknownFieldIsCorrupt(t *testing.T) {
	s := newStore(t, "extra.json")
	if err := os.WriteFile(s.Path(), []byte(`{"active":"a","bogus":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.With(context.Background(), func(*doc) error { return nil }); !errors.Is(err, storage.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

// --- Update ---

func TestStore_UpdatePersists(t *testing.T) {
	for _, name := range []string{"reg.yaml", "reg.yml", "reg.json"} {
		s := newStore(t, name)
		ctx := context.Background()
		err := s.Update(ctx, func(d *doc) error {
			d.Active = "dev"
			d.Items["dev"] = "t3.small"
			return nil
		})
		if err != nil {
			t.Fatalf("%s: Update: %v", name, err)
		}

		reopened := New[doc](s.Path(), flock.New(s.Path()+".lock", 0))
		err = reopened.With(ctx, func(d *doc) error {
			if d.Active != "dev" || d.Items["dev"] != "t3.small" {
				t.Errorf("%s: round trip mismatch: %+v", name, d)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("%s: With: %v", name, err)
		}
	}
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	s := newStore(t, "reg.yaml")
	ctx := context.Background()
	_ = s.Update(ctx, func(d *doc) error { d.Active = "keep"; return nil })

	boom := errors.New("boom")
	err := s.Update(ctx, func(d *doc) error {
		d.Active = "lost"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	data, _ := os.ReadFile(s.Path())
	if !strings.Contains(string(data), "keep") || strings.Contains(string(data), "lost") {
		t.Errorf("expected previous content, got %q", data)
	}
}

func TestCodecFor(t *testing.T) {
	tests := map[string]string{
		"a.json": "json",
		"a.JSON": "json",
		"a.yaml": "yaml",
		"a.yml":  "yaml",
		"a":      "yaml",
	}
	for path, want := range tests {
		if got := CodecFor(path).Name(); got != want {
			t.Errorf("CodecFor(%q): expected %q, got %q", path, want, got)
		}
	}
}
