package domain

import "strings"

// UnknownUsername stands in for a user that cannot be identified.
const UnknownUsername = "[Unknown]"

type User struct {
	UID          string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Locked       bool   `json:"-"`
	Disabled     bool   `json:"-"`
}

// SafeUsername never returns an empty name.
func SafeUsername(username string) string {
	if strings.TrimSpace(username) == "" {
		return UnknownUsername
	}
	return username
}

// UsernameOf returns the user's name, or the unknown sentinel for nil.
func UsernameOf(u *User) string {
	if u == nil {
		return UnknownUsername
	}
	return u.Username
}
