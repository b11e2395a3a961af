package validate

import (
	"regexp"
	"strings"
	"unicode"
)

// Reason identifies why a field value was rejected. Reason values are
// stable strings suitable for audit metadata and caller-side messages.
type Reason string

const (
	// ReasonNone is reported alongside valid results.
	ReasonNone Reason = ""
	// ReasonEmpty is reported for required fields left blank.
	ReasonEmpty Reason = "empty"
	// ReasonTooShort is reported when a value is below its minimum length.
	ReasonTooShort Reason = "too_short"
	// ReasonTooLong is reported when a value exceeds its maximum length.
	ReasonTooLong Reason = "too_long"
	// ReasonInvalidChars is reported when a value contains characters outside its allowed set.
	ReasonInvalidChars Reason = "invalid_chars"
	// ReasonBadFormat is reported when a value does not match its expected shape.
	ReasonBadFormat Reason = "bad_format"
	// ReasonMismatch is reported when a confirmation does not match its source value.
	ReasonMismatch Reason = "mismatch"
	// ReasonPurelyNumeric is reported when a free-form value consists only of digits.
	ReasonPurelyNumeric Reason = "purely_numeric"
	// ReasonNotQuestion is reported when a security question does not end with '?'.
	ReasonNotQuestion Reason = "not_question"
	// ReasonMissingUpper is reported when a password lacks an uppercase letter.
	ReasonMissingUpper Reason = "missing_upper"
	// ReasonMissingLower is reported when a password lacks a lowercase letter.
	ReasonMissingLower Reason = "missing_lower"
	// ReasonMissingDigit is reported when a password lacks a digit.
	ReasonMissingDigit Reason = "missing_digit"
	// ReasonMissingSymbol is reported when a password lacks a symbol.
	ReasonMissingSymbol Reason = "missing_symbol"
)

// Result carries the outcome of a single field check.
type Result struct {
	Valid  bool
	Reason Reason
}

func ok() Result {
	return Result{Valid: true}
}

func fail(r Reason) Result {
	return Result{Reason: r}
}

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	digitsOnly      = regexp.MustCompile(`^\d+$`)
)

const passwordSymbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// Username checks an account handle: 3 to 20 characters, letters,
// digits, and underscore only.
func Username(s string) Result {
	if s == "" {
		return fail(ReasonEmpty)
	}
	if len(s) < 3 {
		return fail(ReasonTooShort)
	}
	if len(s) > 20 {
		return fail(ReasonTooLong)
	}
	if !usernamePattern.MatchString(s) {
		return fail(ReasonInvalidChars)
	}
	return ok()
}

// Email checks the general user@host.tld shape without attempting full
// RFC 5322 parsing.
func Email(s string) Result {
	if s == "" {
		return fail(ReasonEmpty)
	}
	if !emailPattern.MatchString(s) {
		return fail(ReasonBadFormat)
	}
	return ok()
}

// NormalizePhone strips every non-digit rune from s.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Phone checks a national phone number: exactly 10 digits after
// normalization.
func Phone(s string) Result {
	digits := NormalizePhone(s)
	if digits == "" {
		return fail(ReasonEmpty)
	}
	if len(digits) != 10 {
		return fail(ReasonBadFormat)
	}
	return ok()
}

const codeLength = 6

// NormalizeCode strips non-digits from a one-time code and truncates it
// to the canonical six digits. It is an input mask for interactive
// fields; submission paths use [CodeDigits] so over-long input still
// fails the exact-length gate.
func NormalizeCode(s string) string {
	digits := NormalizePhone(s)
	if len(digits) > codeLength {
		return digits[:codeLength]
	}
	return digits
}

// CodeDigits strips separators from a one-time code without bounding
// its length. [OneTimeCode] judges the result.
func CodeDigits(s string) string {
	return NormalizePhone(s)
}

// OneTimeCode checks a normalized one-time code: exactly six digits.
func OneTimeCode(s string) Result {
	if s == "" {
		return fail(ReasonEmpty)
	}
	if !digitsOnly.MatchString(s) {
		return fail(ReasonInvalidChars)
	}
	if len(s) < codeLength {
		return fail(ReasonTooShort)
	}
	if len(s) > codeLength {
		return fail(ReasonTooLong)
	}
	return ok()
}

// Password checks the minimum acceptance gate: at least 8 characters
// with an uppercase letter, a lowercase letter, a digit, and a symbol.
func Password(s string) Result {
	if s == "" {
		return fail(ReasonEmpty)
	}
	if len(s) < 8 {
		return fail(ReasonTooShort)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}

	switch {
	case !hasLower:
		return fail(ReasonMissingLower)
	case !hasUpper:
		return fail(ReasonMissingUpper)
	case !hasDigit:
		return fail(ReasonMissingDigit)
	case !hasSymbol:
		return fail(ReasonMissingSymbol)
	}
	return ok()
}

// Strength grades a password for display purposes. It never gates
// acceptance; Password does that.
type Strength uint8

const (
	// StrengthWeak marks passwords meeting at most two criteria.
	StrengthWeak Strength = iota
	// StrengthMedium marks passwords meeting three or four criteria.
	StrengthMedium
	// StrengthStrong marks passwords meeting five or more criteria.
	StrengthStrong
)

// String returns the display label for a strength grade.
func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "weak"
	case StrengthMedium:
		return "medium"
	case StrengthStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// PasswordStrength scores s against six criteria: length of at least 8,
// length of at least 12, lowercase, uppercase, digit, and symbol. The
// score counts any character outside letters and digits as a symbol;
// only the [Password] acceptance gate restricts which symbols qualify.
func PasswordStrength(s string) Strength {
	var score int
	if len(s) >= 8 {
		score++
	}
	if len(s) >= 12 {
		score++
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if hasLower {
		score++
	}
	if hasUpper {
		score++
	}
	if hasDigit {
		score++
	}
	if hasSymbol {
		score++
	}

	switch {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

// Confirmation checks that a re-entered value matches the original
// exactly.
func Confirmation(value, confirm string) Result {
	if strings.TrimSpace(confirm) == "" {
		return fail(ReasonEmpty)
	}
	if value != confirm {
		return fail(ReasonMismatch)
	}
	return ok()
}

// SecurityQuestion checks a recovery question: at least 10 characters
// and ending with '?'.
func SecurityQuestion(s string) Result {
	if strings.TrimSpace(s) == "" {
		return fail(ReasonEmpty)
	}
	if len(s) < 10 {
		return fail(ReasonTooShort)
	}
	if !strings.HasSuffix(s, "?") {
		return fail(ReasonNotQuestion)
	}
	return ok()
}

// SecurityAnswer checks a recovery answer: trimmed length between 3 and
// 50, and not composed solely of digits.
func SecurityAnswer(s string) Result {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return fail(ReasonEmpty)
	}
	if len(trimmed) < 3 {
		return fail(ReasonTooShort)
	}
	if len(trimmed) > 50 {
		return fail(ReasonTooLong)
	}
	if digitsOnly.MatchString(s) {
		return fail(ReasonPurelyNumeric)
	}
	return ok()
}

// ChallengeAnswer checks the free-form input for a security question
// step-up during login: trimmed length of at least 2.
func ChallengeAnswer(s string) Result {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return fail(ReasonEmpty)
	}
	if len(trimmed) < 2 {
		return fail(ReasonTooShort)
	}
	return ok()
}
