package engine

import "github.com/krishiv-patel/thelatestnew/internal/domain"

type Identity struct {
	// Key is the normalized email used to key cart and order records.
	Key      string
	Email    string
	Verified bool
}

// IdentityProvider is the narrow boundary with the external auth system.
// Consumers define this interface; the host application adapts its auth SDK
// to it and tests plug in fakes.
type IdentityProvider interface {
	Current() (Identity, bool)
	// OnChange registers a callback fired on sign-in and sign-out. The
	// returned function unregisters it.
	OnChange(fn func(id Identity, signedIn bool)) (unsubscribe func())
}

// StaticIdentity is a provider for a fixed, always-signed-in identity.
type StaticIdentity struct {
	ident Identity
}

func NewStaticIdentity(email string) *StaticIdentity {
	return &StaticIdentity{ident: Identity{
		Key:      domain.NormalizeKey(email),
		Email:    email,
		Verified: true,
	}}
}

func (s *StaticIdentity) Current() (Identity, bool) {
	return s.ident, true
}

func (s *StaticIdentity) OnChange(func(Identity, bool)) func() {
	return func() {}
}
