package jsonrpc

import (
	"bytes"
	"encoding/json"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// ID is an opaque correlation id. Ids this side allocates are strings; ids
// from a foreign peer that are not strings (numbers, usually) keep their JSON
// literal and are echoed back unchanged.
type ID struct {
	value   string
	literal bool
}

// StringID wraps s as a string id.
func StringID(s string) ID { return ID{value: s} }

// NewID allocates a correlation id. Monotonic ULIDs never repeat within a
// process, which covers the lifetime of any channel it owns.
func NewID() ID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return StringID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// IsZero reports whether the id is absent.
func (id ID) IsZero() bool { return id == (ID{}) }

// String returns the string id, or the literal text of a non-string id.
func (id ID) String() string { return id.value }

func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.IsZero():
		return []byte("null"), nil
	case id.literal:
		return []byte(id.value), nil
	default:
		return json.Marshal(id.value)
	}
}

func (id *ID) UnmarshalJSON(raw []byte) error {
	parsed, err := parseID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// parseID reads an id field. Null is the zero id; any other non-string value
// is kept as its compacted literal.
func parseID(raw json.RawMessage) (ID, error) {
	if isNull(raw) {
		return ID{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return StringID(s), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ID{}, err
	}
	return ID{value: buf.String(), literal: true}, nil
}
