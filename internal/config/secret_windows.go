//go:build windows

package config

import "github.com/billgraziano/dpapi"

func decryptSecret(data string) (string, error) {
	return dpapi.Decrypt(data)
}

// EncryptSecret protects a value for the current Windows user, ready to paste into
// beemacro.yaml.
func EncryptSecret(plain string) (string, error) {
	enc, err := dpapi.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return secretPrefix + enc, nil
}
