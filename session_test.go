package pgtenant_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pgtenant/pgtenant"
)

// memStore is a minimal in-memory session store.
type memStore struct {
	id, name string
}

func (s *memStore) ActiveTenant() (string, string) { return s.id, s.name }
func (s *memStore) SetActiveTenant(id, name string) {
	s.id, s.name = id, name
}
func (s *memStore) Clear() { s.id, s.name = "", "" }

// memDirectory grants visibility from a fixed map of caller -> tenants.
type memDirectory struct {
	tenants map[string]pgtenant.Tenant // id -> tenant
	grants  map[string][]string       // callerID -> tenant ids
	lookups int
	err     error
}

func (d *memDirectory) VisibleTenant(ctx context.Context, callerID, tenantID string) (pgtenant.Tenant, bool, error) {
	d.lookups++
	if d.err != nil {
		return pgtenant.Tenant{}, false, d.err
	}
	for _, id := range d.grants[callerID] {
		if id == tenantID {
			return d.tenants[id], true, nil
		}
	}
	return pgtenant.Tenant{}, false, nil
}

func testDirectory() *memDirectory {
	return &memDirectory{
		tenants: map[string]pgtenant.Tenant{
			"1": {ID: "1", Name: "first", Active: true},
			"2": {ID: "2", Name: "second", Active: true},
		},
		grants: map[string][]string{
			"alice": {"1", "2"},
			"bob":   {"2"},
		},
	}
}

var (
	alice = pgtenant.Caller{ID: "alice", Authenticated: true}
	anon  = pgtenant.Caller{}
)

func TestSelectVisibleTenant(t *testing.T) {
	dir := testDirectory()
	ctrl := pgtenant.NewSessionController(dir)
	store := &memStore{}

	if err := ctrl.Select(context.Background(), alice, store, "1"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	id, name := store.ActiveTenant()
	if id != "1" || name != "first" {
		t.Errorf("store = (%q, %q), want (1, first)", id, name)
	}
}

func TestSelectForbiddenLeavesSelectionUntouched(t *testing.T) {
	dir := testDirectory()
	ctrl := pgtenant.NewSessionController(dir)
	store := &memStore{}

	bob := pgtenant.Caller{ID: "bob", Authenticated: true}
	if err := ctrl.Select(context.Background(), bob, store, "2"); err != nil {
		t.Fatalf("Select(2): %v", err)
	}

	err := ctrl.Select(context.Background(), bob, store, "1")
	if !pgtenant.IsForbiddenErr(err) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	if id, _ := store.ActiveTenant(); id != "2" {
		t.Errorf("prior selection changed to %q, want 2", id)
	}
}

func TestSelectEmptyAlwaysClears(t *testing.T) {
	dir := testDirectory()
	ctrl := pgtenant.NewSessionController(dir)

	t.Run("authenticated", func(t *testing.T) {
		store := &memStore{id: "1", name: "first"}
		if err := ctrl.Select(context.Background(), alice, store, ""); err != nil {
			t.Fatalf("Select(empty): %v", err)
		}
		if id, _ := store.ActiveTenant(); id != "" {
			t.Errorf("selection = %q, want cleared", id)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		store := &memStore{id: "1", name: "first"}
		if err := ctrl.Select(context.Background(), anon, store, ""); err != nil {
			t.Fatalf("Select(empty): %v", err)
		}
		if id, _ := store.ActiveTenant(); id != "" {
			t.Errorf("selection = %q, want cleared", id)
		}
	})
}

func TestSelectAnonymousIsForbiddenAndClears(t *testing.T) {
	dir := testDirectory()
	ctrl := pgtenant.NewSessionController(dir)
	store := &memStore{id: "1", name: "first"}

	err := ctrl.Select(context.Background(), anon, store, "2")
	if !pgtenant.IsForbiddenErr(err) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if id, _ := store.ActiveTenant(); id != "" {
		t.Errorf("selection = %q, want cleared", id)
	}
}

func TestSelectUnchangedSkipsLookup(t *testing.T) {
	dir := testDirectory()
	ctrl := pgtenant.NewSessionController(dir)
	store := &memStore{}

	if err := ctrl.Select(context.Background(), alice, store, "1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	lookups := dir.lookups

	if err := ctrl.Select(context.Background(), alice, store, "1"); err != nil {
		t.Fatalf("repeat Select: %v", err)
	}
	if dir.lookups != lookups {
		t.Errorf("repeat selection hit the directory (%d -> %d lookups)", lookups, dir.lookups)
	}
}

func TestSelectDirectoryErrorPropagates(t *testing.T) {
	dir := testDirectory()
	dir.err = errors.New("connection refused")
	ctrl := pgtenant.NewSessionController(dir)
	store := &memStore{}

	err := ctrl.Select(context.Background(), alice, store, "1")
	if err == nil || pgtenant.IsForbiddenErr(err) {
		t.Fatalf("err = %v, want wrapped directory error", err)
	}
	if id, _ := store.ActiveTenant(); id != "" {
		t.Errorf("selection = %q, want unchanged", id)
	}
}

func TestObserversNotifiedOnChange(t *testing.T) {
	dir := testDirectory()
	ctrl := pgtenant.NewSessionController(dir)
	store := &memStore{}

	type change struct{ old, new string }
	var changes []change
	ctrl.OnTenantChanged(func(oldID, newID string) {
		changes = append(changes, change{oldID, newID})
	})

	ctx := context.Background()
	if err := ctrl.Select(ctx, alice, store, "1"); err != nil {
		t.Fatalf("Select(1): %v", err)
	}
	if err := ctrl.Select(ctx, alice, store, "1"); err != nil {
		t.Fatalf("Select(1) again: %v", err)
	}
	if err := ctrl.Select(ctx, alice, store, "2"); err != nil {
		t.Fatalf("Select(2): %v", err)
	}

	want := []change{{"", "1"}, {"1", "2"}}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestObserversNotNotifiedOnForbidden(t *testing.T) {
	dir := testDirectory()
	ctrl := pgtenant.NewSessionController(dir)
	store := &memStore{}

	notified := 0
	ctrl.OnTenantChanged(func(oldID, newID string) { notified++ })

	bob := pgtenant.Caller{ID: "bob", Authenticated: true}
	if err := ctrl.Select(context.Background(), bob, store, "1"); !pgtenant.IsForbiddenErr(err) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if notified != 0 {
		t.Errorf("observer notified %d times on forbidden selection", notified)
	}
}
