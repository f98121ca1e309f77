package state

import (
	"errors"
	"strings"
)

// ErrEmptyNickname indicates a nickname with zero length.
var ErrEmptyNickname = errors.New("state: nickname must not be empty")

// ErrNicknameHasSpace indicates a nickname containing an ASCII space, which
// would be ambiguous with the wire protocol's parameter delimiter.
var ErrNicknameHasSpace = errors.New("state: nickname must not contain a space")

// Nickname is an opaque, non-empty, space-free byte string identifying a
// user. The server treats it as opaque: Validate only enforces the two
// invariants the server itself is responsible for. Clients are expected to
// reject worse input (non-ASCII, punctuation, length) before it ever reaches
// the wire, but the server does not re-derive or normalize it the way AIM
// screen names are folded to lowercase -- this protocol has no notion of a
// separate display form.
type Nickname string

// Validate reports whether n is acceptable for registration.
func (n Nickname) Validate() error {
	if len(n) == 0 {
		return ErrEmptyNickname
	}
	if strings.ContainsRune(string(n), ' ') {
		return ErrNicknameHasSpace
	}
	return nil
}

func (n Nickname) String() string {
	return string(n)
}
