package store

import (
	"github.com/vmihailenco/msgpack/v5"
)

// encodeBlob msgpack-encodes v for compact storage in a BLOB column.
func encodeBlob(v any) ([]byte, error) {
	if v == nil {
 return nil, nil
	}
	return msgpack.Marshal(v)
}

// decodeBlob decodes a BLOB column previously written by encodeBlob. A nil
// or empty blob leaves out untouched.
func decodeBlob(blob []byte, out any) error {
	if len(blob) == 0 {
 return nil
	}
	return msgpack.Unmarshal(blob, out)
}
