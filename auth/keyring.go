// Package auth provides a high-level API for persisting and retrieving the resolution-service credential from the system keyring.
package auth

import (
	"github.com/zalando/go-keyring"
)

const (
	service = "tannoy"
	user    = "resolver-token"
)

// SetToken persists the resolution-service access token to the system keyring.
// The token is forwarded with every resolution request; it is what the
// remediation prompt asks the user to refresh when the upstream reports
// expired authentication material.
func SetToken(token string) error {
	return keyring.Set(service, user, token)
}

// GetToken retrieves the resolution-service access token from the system keyring.
func GetToken() (string, error) {
	return keyring.Get(service, user)
}

// DeleteToken removes the resolution-service access token from the system keyring.
func DeleteToken() error {
	return keyring.Delete(service, user)
}
