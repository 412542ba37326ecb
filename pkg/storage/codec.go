package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func encodeSequences(orderSeq, tradeSeq uint64) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], orderSeq)
	binary.BigEndian.PutUint64(b[8:], tradeSeq)
	return b[:]
}

func decodeSequences(b []byte) (orderSeq, tradeSeq uint64, err error) {
	if len(b) != 16 {
		return 0, 0, fmt.Errorf("sequence record has %d bytes, want 16", len(b))
	}
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:]), nil
}
