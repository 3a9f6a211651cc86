// ABOUTME: Tests for the badger KV wrapper
// ABOUTME: Verifies gets, scans, batch writes and conflict reporting

package storage

import (
	"fmt"
	"testing"
)

func setupTestKV(t *testing.T) *KV {
	t.Helper()
	kv, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestSetGetDelete(t *testing.T) {
	kv := setupTestKV(t)

	if err := kv.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, ok, err := kv.Get([]byte("k1"))
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if string(val) != "v1" {
		t.Errorf("Get = %q", val)
	}

	if err := kv.Delete([]byte("k1")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, ok, err = kv.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if ok {
		t.Error("key should be gone")
	}

	// Deleting a missing key is not an error.
	if err := kv.Delete([]byte("nope")); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestScanPrefix(t *testing.T) {
	kv := setupTestKV(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("a/%d", i)
		if err := kv.Set([]byte(key), []byte{byte(i)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := kv.Set([]byte("b/0"), []byte{9}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var keys []string
	err := kv.ScanPrefix([]byte("a/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("ScanPrefix failed: %v", err)
	}
	if len(keys) != 5 {
		t.Errorf("scanned %d keys: %v", len(keys), keys)
	}

	// Early stop.
	count := 0
	err = kv.ScanPrefix([]byte("a/"), func(k, v []byte) bool {
		count++
		return count < 2
	})
	if err != nil {
		t.Fatalf("ScanPrefix failed: %v", err)
	}
	if count != 2 {
		t.Errorf("early stop visited %d keys", count)
	}
}

func TestDeletePrefix(t *testing.T) {
	kv := setupTestKV(t)

	for i := 0; i < 3; i++ {
		_ = kv.Set([]byte(fmt.Sprintf("s1/%d", i)), []byte("x"))
	}
	_ = kv.Set([]byte("s2/0"), []byte("keep"))

	if err := kv.DeletePrefix([]byte("s1/")); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}

	remaining := 0
	_ = kv.ScanPrefix([]byte("s1/"), func(k, v []byte) bool {
		remaining++
		return true
	})
	if remaining != 0 {
		t.Errorf("%d s1 keys survived", remaining)
	}

	_, ok, _ := kv.Get([]byte("s2/0"))
	if !ok {
		t.Error("unrelated key was deleted")
	}
}

func TestSetBatch(t *testing.T) {
	kv := setupTestKV(t)

	batch := [][2][]byte{
		{[]byte("b1"), []byte("v1")},
		{[]byte("b2"), []byte("v2")},
	}
	if err := kv.SetBatch(batch); err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}

	for _, kvp := range batch {
		val, ok, err := kv.Get(kvp[0])
		if err != nil || !ok {
			t.Fatalf("Get %q failed: ok=%v err=%v", kvp[0], ok, err)
		}
		if string(val) != string(kvp[1]) {
			t.Errorf("Get %q = %q", kvp[0], val)
		}
	}
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	kv, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}

	if err := kv.Set([]byte("persist"), []byte("yes")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	kv, err = Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer kv.Close()

	val, ok, err := kv.Get([]byte("persist"))
	if err != nil || !ok {
		t.Fatalf("Get after reopen failed: ok=%v err=%v", ok, err)
	}
	if string(val) != "yes" {
		t.Errorf("Get = %q", val)
	}
}
