package engine

import "errors"

// ErrNotSignedIn is returned by operations that need an identity, such as
// checkout and order history.
var ErrNotSignedIn = errors.New("not signed in")
