package session

import (
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &Session{
		Token:    "eyJhbGciOiJIUzI1NiJ9.payload.sig",
		UserID:   "u1",
		Username: "maria_88",
		Name:     "María",
		Surname:  "González",
		Email:    "maria@example.com",
		Phone:    "5512345678",
		Profile: Profile{
			EmailVerified:       true,
			TOTPEnabled:         true,
			HasSecurityQuestion: true,
		},
		CreatedAt: 1756400000,
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if *decoded != *original {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, original)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	data, err := Encode(&Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	data[0] = 99
	if _, err := Decode(data); err == nil {
		t.Fatal("expected version rejection")
	}
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	data, err := Encode(&Session{UserID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for cut := 1; cut < len(data); cut++ {
		if _, err := Decode(data[:cut]); err == nil {
			t.Fatalf("expected decode error at cut %d", cut)
		}
	}
}

func TestProfileFlagsSurviveRoundTrip(t *testing.T) {
	for flags := 0; flags < 16; flags++ {
		p := Profile{
			EmailVerified:       flags&1 != 0,
			PhoneVerified:       flags&2 != 0,
			TOTPEnabled:         flags&4 != 0,
			HasSecurityQuestion: flags&8 != 0,
		}

		data, err := Encode(&Session{UserID: "u1", Profile: p})
		if err != nil {
			t.Fatalf("Encode failed for flags %d: %v", flags, err)
		}
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed for flags %d: %v", flags, err)
		}
		if decoded.Profile != p {
			t.Fatalf("profile mismatch for flags %d: got %+v want %+v", flags, decoded.Profile, p)
		}
	}
}
