//go:build !windows

package utils

import (
	"fmt"
	"os"
)

func ShowDialog(title, message string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
}
