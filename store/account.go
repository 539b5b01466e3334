package store

import authstate "github.com/goliatone/go-auth-state"

// UserAccount adapts a User into the authstate.Account interface.
type UserAccount struct {
	user *User
}

var _ authstate.Account = UserAccount{}

// NewAccountFromUser returns an Account adapter for the provided user.
func NewAccountFromUser(user *User) authstate.Account {
	if user == nil {
		return nil
	}
	return UserAccount{user: user}
}

// ID returns the user's ID as a string.
func (u UserAccount) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// UserName returns the user's username.
func (u UserAccount) UserName() string {
	if u.user == nil {
		return ""
	}
	return u.user.Username
}

// Email returns the user's email address.
func (u UserAccount) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

func (u UserAccount) FirstName() string {
	if u.user == nil {
		return ""
	}
	return u.user.FirstName
}

func (u UserAccount) LastName() string {
	if u.user == nil {
		return ""
	}
	return u.user.LastName
}

// User returns the adapted record
func (u UserAccount) User() *User {
	return u.user
}
