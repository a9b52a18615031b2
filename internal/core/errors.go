package core

import "errors"

// ErrNotOnline is returned by identity mutations targeting a user with
// no live connection.
var ErrNotOnline = errors.New("user not online")
