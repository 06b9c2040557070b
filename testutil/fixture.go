package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/arthur-debert/nanoquery/nanoquery/store"
	"github.com/arthur-debert/nanoquery/types"
)

// Community ids of the fixture universe
const (
	Community      int64 = 1
	OtherCommunity int64 = 2
)

// Now is the instant the fixture timestamps are relative to
var Now = time.Unix(1_700_000_000, 0).UTC()

// Clock returns Now, for executors that need a deterministic clock
func Clock() time.Time { return Now }

// UniverseData names the fixture rows tests refer to
type UniverseData struct {
	// Profiles of Community
	Ada      int64 // 147, owns 16 live likes, one deleted like and a follow
	Grace    int64 // 148
	Linus    int64 // 149, soft-deleted
	Group    int64 // 150, type "group", target of every post
	Outsider int64 // 201, lives in OtherCommunity

	// Entities of Community
	Engine    int64 // 1001, post by Ada, 7 live likes, 2 comments
	Bugs      int64 // 1002, post by Grace, 5 likes
	Bernoulli int64 // 1003, post by Ada, 4 likes
	Cobol     int64 // 1004, post by Grace, soft-deleted
	GreatRead int64 // 1005, comment by Grace on Engine
	Thanks    int64 // 1006, comment by Ada on Engine
	Kernel    int64 // 1007, post by Linus

	// LivePosts are the non-deleted posts of Community by descending id
	LivePosts []int64

	// LikesByEntity counts the live likes of each entity of Community
	LikesByEntity map[int64]int64

	// Tables holds the raw fixture rows per table name
	Tables map[string][]types.Row
}

// FixturePath returns the absolute path of testdata/universe.json
func FixturePath(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to locate testutil package")
	}
	return filepath.Join(filepath.Dir(file), "..", "testdata", "universe.json")
}

// Universe returns the named fixture rows
func Universe(t testing.TB) *UniverseData {
	t.Helper()
	data, err := os.ReadFile(FixturePath(t))
	if err != nil {
		t.Fatalf("failed to read fixture file: %v", err)
	}
	tables, err := store.DecodeTables(data)
	if err != nil {
		t.Fatalf("failed to decode fixture file: %v", err)
	}

	return &UniverseData{
		Ada: 147, Grace: 148, Linus: 149, Group: 150, Outsider: 201,
		Engine: 1001, Bugs: 1002, Bernoulli: 1003, Cobol: 1004,
		GreatRead: 1005, Thanks: 1006, Kernel: 1007,
		LivePosts: []int64{1007, 1003, 1002, 1001},
		LikesByEntity: map[int64]int64{
			1001: 7, 1002: 5, 1003: 4, 1004: 0, 1005: 1, 1006: 0, 1007: 1,
		},
		Tables: tables,
	}
}

// LoadUniverse loads the fixture through the file-backed memory store
func LoadUniverse(t testing.TB) (*store.MemoryStore, *UniverseData) {
	t.Helper()
	s, err := store.LoadFile(FixturePath(t), types.DefaultSchema())
	if err != nil {
		t.Fatalf("failed to load universe: %v", err)
	}
	return s, Universe(t)
}

// LoadSQLUniverse loads the fixture into a fresh in-memory sqlite database
func LoadSQLUniverse(t testing.TB) (*store.SQLStore, *UniverseData) {
	t.Helper()
	s, err := store.OpenSQL(store.DriverSQLite, ":memory:", types.DefaultSchema())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	universe := Universe(t)
	ctx := context.Background()
	if err := s.CreateTables(ctx); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
	if err := s.Load(ctx, universe.Tables); err != nil {
		t.Fatalf("failed to load universe: %v", err)
	}
	return s, universe
}
