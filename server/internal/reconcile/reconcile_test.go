package reconcile

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type rec struct {
	Key  string
	Body string
}

func keyOf(r *rec) string { return r.Key }

func keys(records []*rec) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Key)
	}
	return out
}

// TestUpsertReplacesInPlace 验证已存在的 key 原位替换，且不修改原切片。
func TestUpsertReplacesInPlace(t *testing.T) {
	a, b := &rec{Key: "a"}, &rec{Key: "b"}
	records := []*rec{a, b}
	a2 := &rec{Key: "a", Body: "v2"}

	out := Upsert(records, a2, keyOf)

	if diff := cmp.Diff([]string{"a", "b"}, keys(out)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if out[0] != a2 {
		t.Fatalf("expected replaced record at position 0")
	}
	if records[0] != a {
		t.Fatalf("expected input slice untouched")
	}
}

// TestUpsertAppendsUnknownKey 验证未知 key 追加到末尾。
func TestUpsertAppendsUnknownKey(t *testing.T) {
	records := []*rec{{Key: "a"}}
	out := Upsert(records, &rec{Key: "b"}, keyOf)

	if diff := cmp.Diff([]string{"a", "b"}, keys(out)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if len(records) != 1 {
		t.Fatalf("expected input slice length 1, got %d", len(records))
	}
}

// TestRemoveMissingKeyReturnsSameSlice 验证删除不存在的 key 时返回同一切片。
func TestRemoveMissingKeyReturnsSameSlice(t *testing.T) {
	records := []*rec{{Key: "a"}, {Key: "b"}}
	out := Remove(records, "zzz", keyOf)
	if &out[0] != &records[0] || len(out) != len(records) {
		t.Fatalf("expected same slice for missing key")
	}
}

// TestRemovePreservesOrder 验证删除保持其余记录顺序。
func TestRemovePreservesOrder(t *testing.T) {
	records := []*rec{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	out := Remove(records, "b", keyOf)

	if diff := cmp.Diff([]string{"a", "c"}, keys(out)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if len(records) != 3 {
		t.Fatalf("expected input slice untouched")
	}
}

// TestUpsertAllDuplicateKeysInBatch 验证批内重复 key：位置取第一次，内容取最后一次。
func TestUpsertAllDuplicateKeysInBatch(t *testing.T) {
	batch := []*rec{{Key: "a", Body: "1"}, {Key: "b"}, {Key: "a", Body: "2"}}
	out := UpsertAll(nil, batch, keyOf)

	if diff := cmp.Diff([]string{"a", "b"}, keys(out)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if out[0].Body != "2" {
		t.Fatalf("expected last content to win, got %q", out[0].Body)
	}
}

// TestUpsertAllEmptyBatchReturnsSameSlice 验证空批次返回原切片。
func TestUpsertAllEmptyBatchReturnsSameSlice(t *testing.T) {
	records := []*rec{{Key: "a"}}
	out := UpsertAll(records, nil, keyOf)
	if &out[0] != &records[0] {
		t.Fatalf("expected same slice for empty batch")
	}
}

// TestMergeIdentityPreservingKeepsEqualRecords 验证内容相同的记录保留旧对象引用，变化的记录用新对象。
func TestMergeIdentityPreservingKeepsEqualRecords(t *testing.T) {
	a, b := &rec{Key: "a", Body: "x"}, &rec{Key: "b", Body: "y"}
	existing := Index([]*rec{a, b}, keyOf)

	fresh := []*rec{{Key: "b", Body: "y"}, {Key: "a", Body: "changed"}, {Key: "c"}}
	out := MergeIdentityPreserving(fresh, existing, keyOf, Equal[*rec])

	if diff := cmp.Diff([]string{"b", "a", "c"}, keys(out)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if out[0] != b {
		t.Fatalf("expected unchanged record to keep existing identity")
	}
	if out[1] == a || out[1].Body != "changed" {
		t.Fatalf("expected changed record to take the fresh object")
	}
}

// TestUniquenessUnderRandomOperations 验证任意 Upsert/Remove 序列之后 key 依然唯一。
func TestUniquenessUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []string{"a", "b", "c", "d", "e"}
	var records []*rec

	for i := 0; i < 1000; i++ {
		key := alphabet[rng.Intn(len(alphabet))]
		if rng.Intn(3) == 0 {
			records = Remove(records, key, keyOf)
		} else {
			records = Upsert(records, &rec{Key: key}, keyOf)
		}

		seen := map[string]bool{}
		for _, r := range records {
			if seen[r.Key] {
				t.Fatalf("duplicate key %q after %d operations", r.Key, i+1)
			}
			seen[r.Key] = true
		}
	}
}
