//go:build !windows

package config

import "errors"

var errNoDPAPI = errors.New("dpapi secrets can only be read on windows")

func decryptSecret(string) (string, error) {
	return "", errNoDPAPI
}

func EncryptSecret(string) (string, error) {
	return "", errNoDPAPI
}
