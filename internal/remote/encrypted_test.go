package remote

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"quill/internal/encryption"
)

func TestEncryptedStore_RoundTrip(t *testing.T) {
	mem := NewMemoryStore(nil)
	enc := encryption.NewTestEncryptor()
	dec, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	store := NewEncryptedStore(mem, enc, dec)

	const plain = `{"backup_time":"2024-01-15T10:30:00.000000","chapters":[]}`
	local := writeLocal(t, t.TempDir(), "snap.json", plain)
	if err := store.Upload(local, "backup_snapshot_2024-01-15_10-30-00.json"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	raw, ok := mem.Get("backup_snapshot_2024-01-15_10-30-00.json.age")
	if !ok {
		t.Fatal("ciphertext object not stored under .age name")
	}
	if bytes.Equal(raw, []byte(plain)) {
		t.Error("object stored unencrypted")
	}

	files, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 1 || files[0].Name != "backup_snapshot_2024-01-15_10-30-00.json" {
		t.Fatalf("List() = %+v", files)
	}

	got, err := store.Download(files[0].Name, t.TempDir())
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := os.ReadFile(got)
	if string(data) != plain {
		t.Errorf("decrypted content = %q, want %q", data, plain)
	}

	if err := store.Delete(files[0].Name); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := mem.Get("backup_snapshot_2024-01-15_10-30-00.json.age"); ok {
		t.Error("ciphertext still present after Delete()")
	}
}

func TestEncryptedStore_LockedDownload(t *testing.T) {
	mem := NewMemoryStore(nil)
	store := NewEncryptedStore(mem, encryption.NewTestEncryptor(), nil)

	local := writeLocal(t, t.TempDir(), "a", "x")
	if err := store.Upload(local, "a.zip"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := store.Download("a.zip", t.TempDir()); !errors.Is(err, ErrLocked) {
		t.Errorf("Download() error = %v, want ErrLocked", err)
	}
}

func TestEncryptedStore_ListHidesPlainObjects(t *testing.T) {
	mem := NewMemoryStore(nil)
	local := writeLocal(t, t.TempDir(), "a", "x")
	if err := mem.Upload(local, "stray.zip"); err != nil {
		t.Fatal(err)
	}
	store := NewEncryptedStore(mem, encryption.NewTestEncryptor(), nil)
	files, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("List() = %+v, want none", files)
	}
}
