package game

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKey = errors.New("unknown key")

// MovementKeys are released together whenever movement has to stop abruptly.
var MovementKeys = []string{"w", "a", "s", "d", "space"}

var keyAliases = map[string]string{
	"escape":  "esc",
	"return":  "enter",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
	"option":  "alt",
	"command": "win",
	"cmd":     "win",
	"windows": "win",
	"del":     "delete",
	"ins":     "insert",
	"control": "ctrl",
	"caps":    "capslock",
}

// knownKeys lists every key name the input drivers accept after normalization.
var knownKeys = func() map[string]struct{} {
	names := []string{
		"esc", "backspace", "tab", "enter", "ctrl", "shift", "alt", "space", "capslock", "win",
		"pageup", "pagedown", "home", "end", "insert", "delete", "up", "down", "left", "right",
		"-", "=", "[", "]", ";", "'", "`", "\\", ",", ".", "/",
	}
	for c := 'a'; c <= 'z'; c++ {
		names = append(names, string(c))
	}
	for c := '0'; c <= '9'; c++ {
		names = append(names, string(c))
	}
	for i := 1; i <= 12; i++ {
		names = append(names, fmt.Sprintf("f%d", i))
	}

	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}()

// NormalizeKey lowercases a key name, strips a "key." prefix and resolves aliases.
func NormalizeKey(key string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "key.")
	if alias, ok := keyAliases[k]; ok {
		k = alias
	}
	if _, ok := knownKeys[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return k, nil
}
