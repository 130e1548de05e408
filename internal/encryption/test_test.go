package encryption

import (
	"bytes"
	"testing"

	"quill/internal/config"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	for _, input := range [][]byte{nil, []byte("hello"), bytes.Repeat([]byte{0xff}, 4096)} {
		var enc bytes.Buffer
		if err := e.Encrypt(bytes.NewReader(input), &enc); err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if !bytes.HasPrefix(enc.Bytes(), testHeader) {
			t.Fatal("output does not start with the test header")
		}

		ctx, _ := e.Unlock("")
		var dec bytes.Buffer
		if err := ctx.Decrypt(bytes.NewReader(enc.Bytes()), &dec); err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(dec.Bytes(), input) {
			t.Errorf("round trip: got %q, want %q", dec.Bytes(), input)
		}
	}
}

func TestTestEncryptor_RejectsForeignData(t *testing.T) {
	t.Parallel()

	ctx, _ := NewTestEncryptor().Unlock("")
	for _, data := range [][]byte{nil, []byte("QL"), []byte("PLAINTEXT DATA")} {
		var out bytes.Buffer
		if err := ctx.Decrypt(bytes.NewReader(data), &out); err == nil {
			t.Errorf("Decrypt(%q) succeeded", data)
		}
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     string
		wantErr bool
	}{
		{name: "default is age", typ: ""},
		{name: "age", typ: "age"},
		{name: "test", typ: "test"},
		{name: "unknown", typ: "rot13", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && e == nil {
				t.Error("nil encryptor")
			}
		})
	}
}
