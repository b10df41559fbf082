package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/TimurManjosov/gorules/internal/db"
	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/google/uuid"
)

func newRule(t *testing.T, s string) Rule {
	t.Helper()
	node, err := rules.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return Rule{ID: uuid.NewString(), RuleString: rules.Format(node), AST: node}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := newRule(t, "age > 30 AND department = 'Sales'")

		created, err := s.Create(ctx, in)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
			t.Errorf("timestamps: created %v updated %v", created.CreatedAt, created.UpdatedAt)
		}

		got, err := s.Get(ctx, in.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != in.ID || got.RuleString != in.RuleString || !rules.Equal(got.AST, in.AST) {
			t.Errorf("Get returned %+v, want %+v", got, in)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := newRule(t, "age > 1")
		if _, err := s.Create(ctx, in); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := s.Create(ctx, in); !errors.Is(err, ErrDuplicateID) {
			t.Errorf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("incomplete rule rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(context.Background(), Rule{ID: uuid.NewString(), RuleString: "age > 1"})
		if !errors.Is(err, rules.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("list keeps insertion order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var ids []string
		for i := 0; i < 5; i++ {
			r := newRule(t, fmt.Sprintf("age > %d", 50-i))
			if _, err := s.Create(ctx, r); err != nil {
				t.Fatalf("Create: %v", err)
			}
			ids = append(ids, r.ID)
		}
		if err := s.Delete(ctx, ids[1]); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		want := []string{ids[0], ids[2], ids[3], ids[4]}

		all, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != len(want) {
			t.Fatalf("List returned %d rules, want %d", len(all), len(want))
		}
		for i, r := range all {
			if r.ID != want[i] {
				t.Errorf("position %d: got %s, want %s", i, r.ID, want[i])
			}
		}
	})

	t.Run("empty list is not nil", func(t *testing.T) {
		s := newStore(t)
		all, err := s.List(context.Background())
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if all == nil || len(all) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", all)
		}
	})

	t.Run("update replaces string and structure", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		orig := newRule(t, "age > 30")
		created, err := s.Create(ctx, orig)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		next := newRule(t, "salary >= 50000 OR department = 'HR'")
		next.ID = orig.ID
		updated, err := s.Update(ctx, next)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.RuleString != next.RuleString || !rules.Equal(updated.AST, next.AST) {
			t.Errorf("Update returned %+v", updated)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
		}

		got, err := s.Get(ctx, orig.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.RuleString != next.RuleString || !rules.Equal(got.AST, next.AST) {
			t.Errorf("Get after update returned %+v", got)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		missing := uuid.NewString()

		if _, err := s.Get(ctx, missing); !errors.Is(err, rules.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		r := newRule(t, "age > 1")
		r.ID = missing
		if _, err := s.Update(ctx, r); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("Update: expected ErrRuleNotFound, got %v", err)
		}
		if err := s.Delete(ctx, missing); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("Delete: expected ErrRuleNotFound, got %v", err)
		}
		if _, err := s.Get(ctx, "not-a-uuid"); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("Get malformed id: expected ErrRuleNotFound, got %v", err)
		}
	})

	t.Run("delete is terminal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := newRule(t, "age > 1")
		if _, err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := s.Delete(ctx, r.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, r.ID); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("Get after delete: expected ErrRuleNotFound, got %v", err)
		}
		if err := s.Delete(ctx, r.ID); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("second Delete: expected ErrRuleNotFound, got %v", err)
		}
	})

	t.Run("concurrent readers see old or new rule", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		oldRule := newRule(t, "age > 30 AND salary > 50000")
		if _, err := s.Create(ctx, oldRule); err != nil {
			t.Fatalf("Create: %v", err)
		}
		newR := newRule(t, "department = 'Sales' OR experience >= 10")
		newR.ID = oldRule.ID

		var wg sync.WaitGroup
		errs := make(chan error, 200)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					got, err := s.Get(ctx, oldRule.ID)
					if err != nil {
						errs <- err
						return
					}
					matchesOld := got.RuleString == oldRule.RuleString && rules.Equal(got.AST, oldRule.AST)
					matchesNew := got.RuleString == newR.RuleString && rules.Equal(got.AST, newR.AST)
					if !matchesOld && !matchesNew {
						errs <- fmt.Errorf("torn read: %q with %s", got.RuleString, rules.Format(got.AST))
						return
					}
				}
			}()
		}
		for i := 0; i < 10; i++ {
			next := oldRule
			if i%2 == 0 {
				next = newR
			}
			if _, err := s.Update(ctx, next); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("GORULES_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("GORULES_TEST_DB_DSN not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		pool, err := db.NewPool(ctx, dsn)
		if err != nil {
			t.Fatalf("NewPool: %v", err)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		if _, err := pool.Exec(ctx, "TRUNCATE rules"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		s := NewPostgresStore(pool)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStore_Contract(t *testing.T) {
	addr := os.Getenv("GORULES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GORULES_TEST_REDIS_ADDR not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewRedisStore(context.Background(), RedisOptions{
			Addr:   addr,
			Prefix: "gorules-test:" + uuid.NewString() + ":",
		})
		if err != nil {
			t.Fatalf("NewRedisStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRule_JSON(t *testing.T) {
	node := rules.MustParse("age > 30 AND department = 'Sales'")
	in := Rule{ID: "abc", RuleString: rules.Format(node), AST: node}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal fields: %v", err)
	}
	for _, key := range []string{"_id", "ruleString", "ast", "createdAt", "updatedAt"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing field %q in %s", key, data)
		}
	}

	var out Rule
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != in.ID || out.RuleString != in.RuleString || !rules.Equal(out.AST, in.AST) {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestRule_UnmarshalWithoutAST(t *testing.T) {
	var r Rule
	if err := json.Unmarshal([]byte(`{"_id":"x","ruleString":"age > 3"}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rules.Equal(r.AST, rules.MustParse("age > 3")) {
		t.Errorf("AST not rebuilt from rule string: %v", r.AST)
	}

	if err := json.Unmarshal([]byte(`{"_id":"x","ruleString":"age >"}`), &r); !errors.Is(err, rules.ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
}
