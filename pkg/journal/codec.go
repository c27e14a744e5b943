package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
)

// writeEntry writes one entry.
// Format: [LSN:8][OpType:1][Flags:1][DataLen:4][Data:N][Checksum:4][Timestamp:8]
func writeEntry(w *bufio.Writer, e *Entry, flags uint8, stored []byte) error {
	if err := binary.Write(w, binary.LittleEndian, e.LSN); err != nil {
		return err
	}
	if err := w.WriteByte(byte(e.OpType)); err != nil {
		return err
	}
	if err := w.WriteByte(flags); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(stored))); err != nil {
		return err
	}
	if _, err := w.Write(stored); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, e.Checksum); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, e.Timestamp)
}

// maxEntrySize bounds a single payload so a corrupt length cannot force a huge allocation
const maxEntrySize = 64 << 20

// entryOverhead is the encoded size of an entry minus its payload
const entryOverhead = 8 + 1 + 1 + 4 + 4 + 8

// readEntry reads one entry, verifies its checksum and decompresses the
// payload. It also returns the number of bytes the entry occupies.
func readEntry(r *bufio.Reader) (*Entry, int64, error) {
	e := &Entry{}

	if err := binary.Read(r, binary.LittleEndian, &e.LSN); err != nil {
		return nil, 0, err
	}
	op, err := r.ReadByte()
	if err != nil {
		return nil, 0, unexpected(err)
	}
	e.OpType = OpType(op)
	flags, err := r.ReadByte()
	if err != nil {
		return nil, 0, unexpected(err)
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, 0, unexpected(err)
	}
	if n > maxEntrySize {
		return nil, 0, fmt.Errorf("entry LSN %d: length %d exceeds limit", e.LSN, n)
	}
	stored := make([]byte, n)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, 0, unexpected(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Checksum); err != nil {
		return nil, 0, unexpected(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Timestamp); err != nil {
		return nil, 0, unexpected(err)
	}

	if got := crc32.ChecksumIEEE(stored); got != e.Checksum {
		return nil, 0, fmt.Errorf("checksum mismatch at LSN %d: expected %08x, got %08x", e.LSN, e.Checksum, got)
	}

	if flags&flagSnappy != 0 {
		e.Data, err = snappy.Decode(nil, stored)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decompress entry LSN %d: %w", e.LSN, err)
		}
	} else {
		e.Data = stored
	}
	return e, entryOverhead + int64(n), nil
}

// a clean EOF is only legal at an entry boundary
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Encode marshals a payload for Append
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode journal payload: %w", err)
	}
	return b, nil
}

// Decode unmarshals an entry payload into v
func (e *Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload at LSN %d: %w", e.OpType, e.LSN, err)
	}
	return nil
}
