package querycontext

import (
	"context"
	"testing"
)

func rowsFixture() []map[string]any {
	return []map[string]any{
		{"id": "C-1", "name": "Acme"},
		{"id": "C-2", "name": "Globex"},
	}
}

func TestRegisterRowsAndGet(t *testing.T) {
	m := NewManager(nil)

	if err := m.RegisterRows("customers", []string{"id", "name"}, rowsFixture()); err != nil {
		t.Fatalf("RegisterRows failed: %v", err)
	}

	ds, ok := m.Get("customers")
	if !ok {
		t.Fatal("Get missed a registered dataset")
	}
	if ds.Len() != 2 {
		t.Errorf("Len = %d, want 2", ds.Len())
	}
	if !ds.HasColumn("name") {
		t.Error("dataset lost its columns")
	}

	if _, ok := m.Get("absent"); ok {
		t.Error("Get should miss an unregistered name")
	}
}

func TestRegisterRowsValidation(t *testing.T) {
	m := NewManager(nil)

	if err := m.RegisterRows("", []string{"id"}, nil); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := m.RegisterRows("x", nil, nil); err == nil {
		t.Error("missing columns should be rejected")
	}
}

func TestRegisterRowsReplacesExisting(t *testing.T) {
	m := NewManager(nil)

	m.RegisterRows("customers", []string{"id"}, []map[string]any{{"id": "old"}})
	m.RegisterRows("customers", []string{"id"}, rowsFixture())

	ds, _ := m.Get("customers")
	if ds.Len() != 2 {
		t.Errorf("replacement did not take effect, Len = %d", ds.Len())
	}
}

func TestRegisterQueryRequiresDatabase(t *testing.T) {
	m := NewManager(nil)

	if err := m.RegisterQuery(context.Background(), "customers", "SELECT 1"); err == nil {
		t.Error("RegisterQuery without a database should fail")
	}
}

func TestListIsSortedByName(t *testing.T) {
	m := NewManager(nil)

	m.RegisterRows("zeta", []string{"a"}, nil)
	m.RegisterRows("alpha", []string{"a"}, rowsFixture())

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(list))
	}
	if list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("List not sorted: %v", list)
	}
	if list[0].RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", list[0].RowCount)
	}
	if list[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestDelete(t *testing.T) {
	m := NewManager(nil)

	m.RegisterRows("customers", []string{"id"}, rowsFixture())
	if err := m.Delete("customers"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := m.Get("customers"); ok {
		t.Error("dataset still present after Delete")
	}
	if err := m.Delete("customers"); err == nil {
		t.Error("double delete should fail")
	}
}

func TestSnapshotIsIndependentOfLaterMutations(t *testing.T) {
	m := NewManager(nil)
	m.RegisterRows("customers", []string{"id"}, rowsFixture())

	snap := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot has %d datasets, want 1", len(snap))
	}

	m.Delete("customers")

	if _, ok := snap["customers"]; !ok {
		t.Error("snapshot should keep the dataset a batch was handed")
	}
}
