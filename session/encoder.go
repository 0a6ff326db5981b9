package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const formatVersionV1 = 1

var ErrCorrupt = errors.New("corrupt session record")

// Encode serialises s. ID is not part of the record; it is the Redis key.
//
// Layout (v1): version | len(userID) userID | len(email) email | createdAt | expiresAt
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	if len(s.Email) > 255 {
		return nil, errors.New("email too long")
	}

	buf := bytes.NewBuffer(make([]byte, 0, 3+len(s.UserID)+len(s.Email)+16))
	buf.WriteByte(formatVersionV1)
	writeString(buf, s.UserID)
	writeString(buf, s.Email)

	var ts [16]byte
	binary.BigEndian.PutUint64(ts[:8], uint64(s.CreatedAt))
	binary.BigEndian.PutUint64(ts[8:], uint64(s.ExpiresAt))
	buf.Write(ts[:])

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != formatVersionV1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorrupt, version)
	}

	s := &Session{}
	if s.UserID, err = readString(r); err != nil {
		return nil, err
	}
	if s.Email, err = readString(r); err != nil {
		return nil, err
	}

	var ts [16]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	s.CreatedAt = int64(binary.BigEndian.Uint64(ts[:8]))
	s.ExpiresAt = int64(binary.BigEndian.Uint64(ts[8:]))

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	return s, nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(b), nil
}
