package usage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_GetAbsentKey(t *testing.T) {
	store := openTestStore(t)
	value, err := store.Get(context.Background(), "rpm:nobody:202603151030")
	if err != nil {
		t.Fatal(err)
	}
	if value != 0 {
		t.Errorf("absent key reads %d, want 0", value)
	}
}

func TestSQLiteStore_IncrementBy(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.IncrementBy(ctx, "tokens:a:2026-03", 500); err != nil {
		t.Fatal(err)
	}
	if err := store.IncrementBy(ctx, "tokens:a:2026-03", 250); err != nil {
		t.Fatal(err)
	}

	value, err := store.Get(ctx, "tokens:a:2026-03")
	if err != nil {
		t.Fatal(err)
	}
	if value != 750 {
		t.Errorf("value = %d, want 750", value)
	}
}

func TestSQLiteStore_IncrementIfBelow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := store.IncrementIfBelow(ctx, "rpm:a:202603151030", 3)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("increment %d should be allowed", i+1)
		}
	}

	ok, err := store.IncrementIfBelow(ctx, "rpm:a:202603151030", 3)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("increment past the limit should be refused")
	}
}

func TestSQLiteStore_IncrementIfBelowConcurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const limit = 5
	var wg sync.WaitGroup
	admitted := make(chan bool, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.IncrementIfBelow(ctx, "rpm:c:202603151030", limit)
			if err != nil {
				t.Error(err)
				return
			}
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != limit {
		t.Errorf("admitted %d, want exactly %d", count, limit)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.IncrementBy(ctx, "monthly:a:2026-03", 7); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	value, err := reopened.Get(ctx, "monthly:a:2026-03")
	if err != nil {
		t.Fatal(err)
	}
	if value != 7 {
		t.Errorf("value after reopen = %d, want 7", value)
	}
}
