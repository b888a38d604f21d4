package gpt

import (
	"fmt"

	"github.com/google/uuid"
)

// GenericDataGUID is the partition type used when a configuration does not
// name one. It marks a generic Linux data partition.
const GenericDataGUID = "8DA63339-0007-60C0-C436-083AC8230908"

// ParseGUID parses the canonical textual form of a GUID.
func ParseGUID(text string) (uuid.UUID, error) {
	id, err := uuid.Parse(text)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid GUID %q: %w", text, err)
	}
	return id, nil
}

// guidBytes returns the on-disk GPT representation of a GUID. GPT stores
// GUIDs in mixed-endian form: the first three groups are little-endian, the
// remaining eight bytes are kept as-is.
func guidBytes(id uuid.UUID) [16]byte {
	var b [16]byte
	b[0], b[1], b[2], b[3] = id[3], id[2], id[1], id[0]
	b[4], b[5] = id[5], id[4]
	b[6], b[7] = id[7], id[6]
	copy(b[8:], id[8:])
	return b
}

// guidFromBytes is the inverse of guidBytes.
func guidFromBytes(b []byte) uuid.UUID {
	var id uuid.UUID
	id[0], id[1], id[2], id[3] = b[3], b[2], b[1], b[0]
	id[4], id[5] = b[5], b[4]
	id[6], id[7] = b[7], b[6]
	copy(id[8:], b[8:16])
	return id
}
