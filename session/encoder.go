package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersion1 = 1

const (
	profileFlagEmailVerified = 1 << iota
	profileFlagPhoneVerified
	profileFlagTOTPEnabled
	profileFlagHasSecurityQuestion
)

const maxFieldLen = 65535

// Encode serializes a session into the versioned binary record format
// stored in Redis.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersion1)

	for _, field := range []string{s.Token, s.UserID, s.Username, s.Name, s.Surname, s.Email, s.Phone} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	buf.WriteByte(profileFlags(s.Profile))

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a binary session record produced by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	fields := []*string{&s.Token, &s.UserID, &s.Username, &s.Name, &s.Surname, &s.Email, &s.Phone}
	for _, field := range fields {
		value, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*field = value
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Profile = profileFromFlags(flags)

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}

	return s, nil
}

func profileFlags(p Profile) byte {
	var flags byte
	if p.EmailVerified {
		flags |= profileFlagEmailVerified
	}
	if p.PhoneVerified {
		flags |= profileFlagPhoneVerified
	}
	if p.TOTPEnabled {
		flags |= profileFlagTOTPEnabled
	}
	if p.HasSecurityQuestion {
		flags |= profileFlagHasSecurityQuestion
	}
	return flags
}

func profileFromFlags(flags byte) Profile {
	return Profile{
		EmailVerified:       flags&profileFlagEmailVerified != 0,
		PhoneVerified:       flags&profileFlagPhoneVerified != 0,
		TOTPEnabled:         flags&profileFlagTOTPEnabled != 0,
		HasSecurityQuestion: flags&profileFlagHasSecurityQuestion != 0,
	}
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > maxFieldLen {
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
	value := make([]byte, length)
	if _, err := io.ReadFull(reader, value); err != nil {
		return "", err
	}
	return string(value), nil
}
