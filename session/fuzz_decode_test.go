package session

import "testing"

// FuzzRecordDecode feeds arbitrary blobs to the decoder.
// Goal: no panics, and anything accepted re-encodes cleanly.
func FuzzRecordDecode(f *testing.F) {
	encoded, err := Encode(testRecord())
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:len(encoded)/2])
	}
	f.Add([]byte{})
	f.Add([]byte{CurrentSchemaVersion})
	f.Add([]byte{255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(*rec); err != nil {
			t.Fatalf("decoded record does not re-encode: %v", err)
		}
	})
}
