package gallery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/auth"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/gallery/mock"
)

func openStore(t *testing.T, p *mock.MockPersister, opts gallery.Options) *gallery.Store {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	}
	s, err := gallery.Open(context.Background(), p, opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestStorePutCreatesAndAppends(t *testing.T) {
	p := mock.NewMockPersister()
	s := openStore(t, p, gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()

	res, err := s.Put(ctx, gallery.PutRequest{Name: "  Alice ", Level: gallery.LevelRestricted, Embedding: gallery.Embedding{1, 0, 0}})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !res.Created {
		t.Error("first Put should create the identity")
	}
	if res.Identity.Name != "Alice" || res.Identity.Key != "alice" {
		t.Errorf("identity = %q/%q, want Alice/alice", res.Identity.Name, res.Identity.Key)
	}
	if res.Identity.ID == "" {
		t.Error("identity ID not assigned")
	}

	res2, err := s.Put(ctx, gallery.PutRequest{Name: "ALICE", Level: gallery.LevelRestricted, Embedding: gallery.Embedding{0.9, 0.1, 0}})
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if res2.Created {
		t.Error("second Put should append, not create")
	}
	if res2.Identity.ID != res.Identity.ID {
		t.Errorf("ID changed on re-enroll: %s -> %s", res.Identity.ID, res2.Identity.ID)
	}
	if len(res2.Identity.Samples) != 2 {
		t.Errorf("samples = %d, want 2", len(res2.Identity.Samples))
	}

	ids, samples := s.Count()
	if ids != 1 || samples != 2 {
		t.Errorf("Count() = (%d, %d), want (1, 2)", ids, samples)
	}
	if p.SaveCalls != 2 {
		t.Errorf("SaveCalls = %d, want 2", p.SaveCalls)
	}
	if stored, ok := p.Stored("alice"); !ok || len(stored.Samples) != 2 {
		t.Error("persister does not hold both samples")
	}
}

func TestStorePutValidation(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{Dimension: 3, DuplicateThreshold: 0.3})
	ctx := context.Background()

	tests := []struct {
		name string
		req  gallery.PutRequest
		want error
	}{
		{"empty name", gallery.PutRequest{Name: "  ", Embedding: gallery.Embedding{1, 2, 3}}, apperr.ErrValidation},
		{"empty embedding", gallery.PutRequest{Name: "bob"}, apperr.ErrInvalidEmbedding},
		{"zero embedding", gallery.PutRequest{Name: "bob", Embedding: gallery.Embedding{0, 0, 0}}, apperr.ErrInvalidEmbedding},
		{"wrong dimension", gallery.PutRequest{Name: "bob", Embedding: gallery.Embedding{1, 2}}, apperr.ErrInvalidEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Put(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Put() error = %v, want %v", err, tt.want)
			}
		})
	}
	if n, _ := s.Count(); n != 0 {
		t.Errorf("store holds %d identities after rejected writes", n)
	}
}

func TestStoreAdoptsDimension(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()
	if s.Dimension() != 0 {
		t.Fatalf("Dimension() = %d before first write", s.Dimension())
	}
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "a", Embedding: gallery.Embedding{1, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if s.Dimension() != 4 {
		t.Errorf("Dimension() = %d, want 4", s.Dimension())
	}
	_, err := s.Put(ctx, gallery.PutRequest{Name: "b", Embedding: gallery.Embedding{0, 1}})
	if !errors.Is(err, apperr.ErrInvalidEmbedding) {
		t.Errorf("Put() with other dimension error = %v, want invalid embedding", err)
	}
}

func TestStoreRejectsDuplicateUnderOtherName(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()

	e := gallery.Embedding{0.5, 0.5, 0.5}
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "alice", Embedding: e}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Put(ctx, gallery.PutRequest{Name: "mallory", Embedding: gallery.Embedding{0.5, 0.5, 0.51}})
	if !errors.Is(err, apperr.ErrDuplicateEmbedding) {
		t.Fatalf("Put() error = %v, want duplicate embedding", err)
	}
	if _, ok := s.Get("mallory"); ok {
		t.Error("rejected identity was stored")
	}

	// The same face under the same name is a re-enrollment.
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "Alice", Embedding: e}); err != nil {
		t.Errorf("re-enroll with identical embedding error = %v", err)
	}
}

func TestStoreDuplicateCheckDisabled(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{DuplicateThreshold: -1})
	ctx := context.Background()
	e := gallery.Embedding{1, 1}
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "a", Embedding: e}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "b", Embedding: e}); err != nil {
		t.Errorf("Put() error = %v with duplicate check disabled", err)
	}
}

func TestStoreEmailConflict(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "alice", Email: "Alice@Example.com", Embedding: gallery.Embedding{1, 0}}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Put(ctx, gallery.PutRequest{Name: "bob", Email: "alice@example.com ", Embedding: gallery.Embedding{0, 1}})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Put() error = %v, want conflict", err)
	}
}

func TestStoreCheckVetoesWrite(t *testing.T) {
	p := mock.NewMockPersister()
	s := openStore(t, p, gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "alice", Level: gallery.LevelPublic, Embedding: gallery.Embedding{1, 0}}); err != nil {
		t.Fatal(err)
	}

	veto := apperr.Validation("level differs")
	var seen *gallery.Identity
	_, err := s.Put(ctx, gallery.PutRequest{
		Name:      "alice",
		Level:     gallery.LevelFull,
		Embedding: gallery.Embedding{0.9, 0.1},
		Check: func(existing *gallery.Identity) error {
			seen = existing
			return veto
		},
	})
	if !errors.Is(err, veto) {
		t.Fatalf("Put() error = %v, want veto", err)
	}
	if seen == nil || seen.Level != gallery.LevelPublic {
		t.Errorf("Check saw %v, want existing level-1 identity", seen)
	}
	if p.SaveCalls != 1 {
		t.Errorf("SaveCalls = %d, want 1", p.SaveCalls)
	}
}

func TestStorePersistFailureLeavesStateUnchanged(t *testing.T) {
	p := mock.NewMockPersister()
	s := openStore(t, p, gallery.Options{DuplicateThreshold: 0.3})
	p.SaveError = errors.New("disk full")

	_, err := s.Put(context.Background(), gallery.PutRequest{Name: "alice", Embedding: gallery.Embedding{1, 0}})
	if err == nil {
		t.Fatal("Put() error = nil, want persist failure")
	}
	if n, _ := s.Count(); n != 0 {
		t.Errorf("Count() = %d after failed persist", n)
	}
	if s.Dimension() != 0 {
		t.Errorf("Dimension() adopted %d after failed persist", s.Dimension())
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "alice", Embedding: gallery.Embedding{1, 0}}); err != nil {
		t.Fatal(err)
	}

	before := s.All()
	if s.All() != before {
		t.Error("All() rebuilt an unchanged snapshot")
	}
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "bob", Embedding: gallery.Embedding{0, 1}}); err != nil {
		t.Fatal(err)
	}
	after := s.All()
	if before.Len() != 1 {
		t.Errorf("old snapshot changed: Len() = %d", before.Len())
	}
	if after.Len() != 2 || after.Dimension() != 2 {
		t.Errorf("new snapshot Len() = %d, Dimension() = %d", after.Len(), after.Dimension())
	}
}

func TestStoreOpenLoadsPersisted(t *testing.T) {
	p := mock.NewMockPersister()
	p.AddIdentity(gallery.Identity{ID: "1", Name: "Alice", Email: "alice@example.com", Level: gallery.LevelFull,
		Samples: []gallery.Sample{{ID: "s1", Embedding: gallery.Embedding{1, 0, 0}}}})
	p.AddIdentity(gallery.Identity{ID: "2", Name: "Bob", Level: gallery.LevelPublic,
		Samples: []gallery.Sample{{ID: "s2", Embedding: gallery.Embedding{0, 1, 0}}}})

	s := openStore(t, p, gallery.Options{DuplicateThreshold: 0.3})
	if n, samples := s.Count(); n != 2 || samples != 2 {
		t.Errorf("Count() = (%d, %d), want (2, 2)", n, samples)
	}
	if s.Dimension() != 3 {
		t.Errorf("Dimension() = %d, want 3", s.Dimension())
	}
	list := s.List()
	if len(list) != 2 || list[0].Name != "Alice" || list[1].Name != "Bob" {
		t.Errorf("List() = %+v", list)
	}
	_, err := s.Put(context.Background(), gallery.PutRequest{Name: "carol", Email: "ALICE@example.com", Embedding: gallery.Embedding{0, 0, 1}})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("loaded email not indexed: err = %v", err)
	}
}

func TestStoreOpenErrors(t *testing.T) {
	p := mock.NewMockPersister()
	p.LoadError = errors.New("boom")
	if _, err := gallery.Open(context.Background(), p, gallery.Options{}); err == nil {
		t.Error("Open() error = nil, want load failure")
	}

	p = mock.NewMockPersister()
	p.AddIdentity(gallery.Identity{Name: "a", Samples: []gallery.Sample{{Embedding: gallery.Embedding{1, 0}}}})
	p.AddIdentity(gallery.Identity{Name: "b", Samples: []gallery.Sample{{Embedding: gallery.Embedding{1, 0, 0}}}})
	if _, err := gallery.Open(context.Background(), p, gallery.Options{}); err == nil {
		t.Error("Open() error = nil, want dimension mismatch")
	}
}

func TestStoreDelete(t *testing.T) {
	p := mock.NewMockPersister()
	s := openStore(t, p, gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "alice", Email: "a@x.io", Embedding: gallery.Embedding{1, 0}}); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, "Alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.All().Len() != 0 || p.Len() != 0 {
		t.Error("identity still present after Delete")
	}
	if err := s.Delete(ctx, "alice"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
	// Email is free again.
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "bob", Email: "a@x.io", Embedding: gallery.Embedding{0, 1}}); err != nil {
		t.Errorf("Put() after delete error = %v", err)
	}
}

func TestStoreFindByCredentials(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{DuplicateThreshold: 0.3})
	ctx := context.Background()
	hash, err := auth.HashPassword("secret1", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "Jiří Novák", Email: "jiri@example.com", PasswordHash: hash, Embedding: gallery.Embedding{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, gallery.PutRequest{Name: "nopass", Embedding: gallery.Embedding{0, 1}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		login    string
		password string
		wantErr  bool
	}{
		{"by email", "JIRI@example.com", "secret1", false},
		{"by name", "jiri novak", "secret1", false},
		{"wrong password", "jiri@example.com", "nope", true},
		{"unknown login", "ghost", "secret1", true},
		{"no password set", "nopass", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.FindByCredentials(tt.login, tt.password)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrAuthentication) {
					t.Errorf("FindByCredentials() error = %v, want authentication error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindByCredentials() error = %v", err)
			}
			if id.Name != "Jiří Novák" {
				t.Errorf("identity = %q", id.Name)
			}
		})
	}
}

func TestStoreConcurrentPuts(t *testing.T) {
	s := openStore(t, mock.NewMockPersister(), gallery.Options{DuplicateThreshold: -1})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Put(ctx, gallery.PutRequest{Name: "same", Embedding: gallery.Embedding{float32(i + 1), 1}})
			_ = s.All().Len()
		}(i)
	}
	wg.Wait()

	id, ok := s.Get("same")
	if !ok {
		t.Fatal("identity missing")
	}
	if len(id.Samples) != 50 {
		t.Errorf("samples = %d, want 50", len(id.Samples))
	}
}

func TestStoreClose(t *testing.T) {
	p := mock.NewMockPersister()
	s := openStore(t, p, gallery.Options{})
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if p.FlushCalls != 1 || !p.Closed {
		t.Errorf("flush=%d closed=%v", p.FlushCalls, p.Closed)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := s.Put(context.Background(), gallery.PutRequest{Name: "x", Embedding: gallery.Embedding{1}}); err == nil {
		t.Error("Put() after Close succeeded")
	}
}
