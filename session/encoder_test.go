package session

import (
	"errors"
	"testing"
	"time"
)

func testRecord() Record {
	now := time.UnixMilli(1_700_000_000_000)
	return Record{
		User: Identity{
			ID:    "u-1",
			Name:  "Ada",
			Email: "ada@example.com",
			Roles: []string{"member", "editor"},
		},
		Token:     "tok-1",
		ExpiresAt: now.Add(time.Hour),
		SavedAt:   now,
	}
}

func TestEncodeDecodePreservesRecord(t *testing.T) {
	rec := testRecord()
	blob, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if blob[0] != CurrentSchemaVersion {
		t.Fatalf("expected version byte %d, got %d", CurrentSchemaVersion, blob[0])
	}

	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Token != rec.Token || got.User.ID != rec.User.ID || got.User.Email != rec.User.Email {
		t.Fatalf("decoded record mismatch: %+v", got)
	}
	if len(got.User.Roles) != 2 || got.User.Roles[1] != "editor" {
		t.Fatalf("roles mismatch: %v", got.User.Roles)
	}
	if !got.ExpiresAt.Equal(rec.ExpiresAt) || !got.SavedAt.Equal(rec.SavedAt) {
		t.Fatalf("timestamps mismatch: %v %v", got.ExpiresAt, got.SavedAt)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := Encode(testRecord())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := Encode(testRecord())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("expected identical encodings for identical records")
	}
}

func TestEncodeRejectsIncompleteRecord(t *testing.T) {
	rec := testRecord()
	rec.Token = ""
	if _, err := Encode(rec); err == nil {
		t.Fatal("expected error for empty token")
	}

	rec = testRecord()
	rec.User.ID = ""
	if _, err := Encode(rec); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Decode([]byte{99, 0xa0})
	if !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("expected unsupported schema error, got %v", err)
	}
}

func TestDecodeRejectsCorruptBody(t *testing.T) {
	for _, blob := range [][]byte{nil, {CurrentSchemaVersion}, {CurrentSchemaVersion, 0xff, 0x00}} {
		if _, err := Decode(blob); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("expected corrupt record error for %x, got %v", blob, err)
		}
	}
}

func TestZeroExpiryRoundTripsAsZero(t *testing.T) {
	rec := testRecord()
	rec.ExpiresAt = time.Time{}
	blob, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.ExpiresAt.IsZero() {
		t.Fatalf("expected zero expiry, got %v", got.ExpiresAt)
	}
}
