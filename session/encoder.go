package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CurrentSchemaVersion is the leading byte of every encoded Record.
const CurrentSchemaVersion = 1

// maxRecordSize bounds decoding of untrusted blobs.
const maxRecordSize = 64 << 10

// ErrUnsupportedSchema is returned when a blob carries an unknown version byte.
var ErrUnsupportedSchema = errors.New("unsupported session schema version")

// ErrCorruptRecord is returned when a blob cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt session record")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1024,
		MaxMapPairs:      1024,
	}.DecMode()
	if err != nil {
		panic("session: CBOR decoder initialization failed: " + err.Error())
	}
}

type wireIdentity struct {
	ID    string   `cbor:"1,keyasint"`
	Name  string   `cbor:"2,keyasint,omitempty"`
	Email string   `cbor:"3,keyasint,omitempty"`
	Roles []string `cbor:"4,keyasint,omitempty"`
}

type wireRecord struct {
	User      wireIdentity `cbor:"1,keyasint"`
	Token     string       `cbor:"2,keyasint"`
	ExpiresAt int64        `cbor:"3,keyasint,omitempty"`
	SavedAt   int64        `cbor:"4,keyasint,omitempty"`
}

// Encode serializes r as a version byte followed by a deterministic CBOR map.
// Timestamps are stored as unix milliseconds.
func Encode(r Record) ([]byte, error) {
	if r.Token == "" {
		return nil, errors.New("record token is empty")
	}
	if r.User.ID == "" {
		return nil, errors.New("record user id is empty")
	}

	w := wireRecord{
		User: wireIdentity{
			ID:    r.User.ID,
			Name:  r.User.Name,
			Email: r.User.Email,
			Roles: r.User.Roles,
		},
		Token:     r.Token,
		ExpiresAt: unixMilli(r.ExpiresAt),
		SavedAt:   unixMilli(r.SavedAt),
	}

	body, err := encMode.Marshal(w)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, CurrentSchemaVersion)
	return append(out, body...), nil
}

// Decode parses a blob produced by [Encode].
func Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrCorruptRecord
	}
	if len(data) > maxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(data))
	}
	if data[0] != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, data[0])
	}

	var w wireRecord
	if err := decMode.Unmarshal(data[1:], &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if w.Token == "" || w.User.ID == "" {
		return nil, ErrCorruptRecord
	}

	return &Record{
		User: Identity{
			ID:    w.User.ID,
			Name:  w.User.Name,
			Email: w.User.Email,
			Roles: w.User.Roles,
		},
		Token:     w.Token,
		ExpiresAt: fromUnixMilli(w.ExpiresAt),
		SavedAt:   fromUnixMilli(w.SavedAt),
	}, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
