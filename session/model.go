package session

// Profile tracks which verification factors the signed-in user has
// completed. Flags only move from false to true during a session, with
// the single exception of TOTPEnabled, which a successful disable
// operation clears.
type Profile struct {
	EmailVerified       bool
	PhoneVerified       bool
	TOTPEnabled         bool
	HasSecurityQuestion bool
}

// Session is the persisted authentication state: the remote-issued
// token, the user identity it belongs to, and the verification profile.
type Session struct {
	Token string

	UserID   string
	Username string
	Name     string
	Surname  string
	Email    string
	Phone    string

	Profile Profile

	CreatedAt int64
}
