package model

import "time"

// UserIdentity is who a caller is.  Admin is the site authority: it can
// rotate keys, change reserve accounts, and grant or revoke the operator
// role.  Operators run rounds: create, declare winners, drive settlement.
type UserIdentity struct {
	ID         int64
	Nick       string
	IsAdmin    bool
	IsOperator bool
}

func (u *UserIdentity) Clone() *UserIdentity {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// UserRow is a UserIdentity plus its stored password hash.
type UserRow struct {
	UserIdentity
	PasswordHash string
}

// AuthCookieData is what we bake into the auth cookie.
type AuthCookieData struct {
	UserID   int64
	Nick     string
	IssuedAt time.Time
}

// CookieKeyValidity bounds when a cookie key may mint new cookies and until
// when old cookies signed with it are still honored.
type CookieKeyValidity struct {
	MintFrom   time.Time
	MintUntil  time.Time
	HonorUntil time.Time
}

// CookieKeyPair is one securecookie key pair, base64-encoded for storage.
type CookieKeyPair struct {
	Validity   CookieKeyValidity
	HashKey64  string
	BlockKey64 string
}

// SiteConfig is server-wide configuration stored in the database.
type SiteConfig struct {
	OptimisticLock       int64
	CookieDomain         string
	AllowedOriginDomains []string
	CookieKeys           []CookieKeyPair

	// PrimaryReserve and SecondaryReserve receive the end-of-round sweep.
	// Only an admin may change them.
	PrimaryReserve   string
	SecondaryReserve string
}
