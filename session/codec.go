package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Sessions are stored as a compact versioned binary blob. The version byte
// leads so the layout can evolve without invalidating live sessions.
const codecVersion1 = 1

var errCorruptSession = errors.New("corrupt session record")

// Encode serializes a session. SessionID is the Redis key and is not part of
// the payload.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecVersion1)

	for _, field := range []string{s.UserID, s.Email, s.Role, s.IP, s.UserAgent} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	buf.Write(s.AccessHash[:])
	buf.Write(s.RefreshHash[:])

	flags := byte(0)
	if s.Active {
		flags |= 1
	}
	buf.WriteByte(flags)
	buf.WriteByte(byte(s.Reason))

	for _, ts := range []int64{s.CreatedAt, s.LastActivity, s.ExpiresAt, s.LogoutAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode deserializes a session blob. The caller sets SessionID from the key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptSession
	}
	if version != codecVersion1 {
		return nil, errCorruptSession
	}

	s := &Session{}
	for _, field := range []*string{&s.UserID, &s.Email, &s.Role, &s.IP, &s.UserAgent} {
		if *field, err = readString(reader); err != nil {
			return nil, errCorruptSession
		}
	}

	if _, err := io.ReadFull(reader, s.AccessHash[:]); err != nil {
		return nil, errCorruptSession
	}
	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, errCorruptSession
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptSession
	}
	s.Active = flags&1 != 0

	reason, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptSession
	}
	s.Reason = Reason(reason)

	for _, ts := range []*int64{&s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &s.LogoutAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, errCorruptSession
		}
	}

	return s, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("session field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
