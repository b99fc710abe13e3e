package encryption

import (
	"bytes"
	"testing"

	"zbackup/internal/zb"
)

// encrypt streams data through e.EncryptWriter and returns the ciphertext.
func encrypt(t *testing.T, e zb.Encryptor, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := e.EncryptWriter(&buf)
	if err != nil {
		t.Fatalf("EncryptWriter() error = %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

var roundTripInputs = []struct {
	name  string
	input []byte
}{
	{name: "simple text", input: []byte("hello world")},
	{name: "empty", input: []byte{}},
	{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	{name: "large data", input: bytes.Repeat([]byte("abcdef"), 100000)},
}
