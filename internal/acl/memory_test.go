package acl

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemStore_Seed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore("42", " ", " 7 ")

	for id, want := range map[string]bool{"42": true, "7": true, "": false, "99": false} {
		got, err := s.IsOperator(ctx, id)
		if err != nil {
			t.Fatalf("IsOperator(%q): %v", id, err)
		}
		if got != want {
			t.Errorf("IsOperator(%q) = %v, want %v", id, got, want)
		}
	}

	ops, _ := s.List(ctx)
	if len(ops) != 2 || ops[0].UserID != "42" || ops[1].UserID != "7" {
		t.Fatalf("List = %+v, want [42 7]", ops)
	}
	for _, op := range ops {
		if op.GrantedBy != SeedGrantor {
			t.Errorf("%s granted by %q, want %q", op.UserID, op.GrantedBy, SeedGrantor)
		}
	}
}

func TestMemStore_GrantRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Grant(ctx, "1", "boss"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := s.Grant(ctx, "1", "someone-else"); err != nil {
		t.Fatalf("second Grant: %v", err)
	}
	ops, _ := s.List(ctx)
	if len(ops) != 1 || ops[0].GrantedBy != "boss" {
		t.Errorf("List = %+v, want original grant kept", ops)
	}

	if err := s.Revoke(ctx, "1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := s.Revoke(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Revoke = %v, want ErrNotFound", err)
	}
	if ok, _ := s.IsOperator(ctx, "1"); ok {
		t.Error("revoked user still an operator")
	}
}

func TestMemStore_Concurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			id := string(rune('a' + i%10))
			_ = s.Grant(ctx, id, "t")
			_, _ = s.IsOperator(ctx, id)
			_, _ = s.List(ctx)
		})
	}
	wg.Wait()

	ops, _ := s.List(ctx)
	if len(ops) != 10 {
		t.Errorf("len(List) = %d, want 10", len(ops))
	}
}

func TestApplySeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore("old", "kept")

	if err := ApplySeed(ctx, s, []string{"new"}, []string{"old", "never-there"}); err != nil {
		t.Fatalf("ApplySeed: %v", err)
	}
	ops, _ := s.List(ctx)
	var ids []string
	for _, op := range ops {
		ids = append(ids, op.UserID)
	}
	if len(ids) != 2 || ids[0] != "kept" || ids[1] != "new" {
		t.Errorf("operators = %v, want [kept new]", ids)
	}
}

type failingStore struct{ *MemStore }

func (f *failingStore) Grant(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestApplySeed_JoinsErrors(t *testing.T) {
	t.Parallel()
	s := &failingStore{MemStore: NewMemStore()}
	err := ApplySeed(context.Background(), s, []string{"a", "b"}, nil)
	if err == nil {
		t.Fatal("ApplySeed = nil, want error")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("ApplySeed error = %v, want two joined errors", err)
	}
}
