//go:build windows

package game

import (
	"fmt"
	"unsafe"

	"github.com/beemacro/beemacro/internal/utils/winproc"
	"github.com/lxn/win"
)

const mapVKToVSC = 0

type virtualKey struct {
	vk       uint16
	extended bool
}

var virtualKeys = func() map[string]virtualKey {
	m := map[string]virtualKey{
		"esc":       {win.VK_ESCAPE, false},
		"backspace": {win.VK_BACK, false},
		"tab":       {win.VK_TAB, false},
		"enter":     {win.VK_RETURN, false},
		"ctrl":      {win.VK_CONTROL, false},
		"shift":     {win.VK_SHIFT, false},
		"alt":       {win.VK_MENU, false},
		"space":     {win.VK_SPACE, false},
		"capslock":  {win.VK_CAPITAL, false},
		"-":         {win.VK_OEM_MINUS, false},
		"=":         {win.VK_OEM_PLUS, false},
		"[":         {win.VK_OEM_4, false},
		"]":         {win.VK_OEM_6, false},
		";":         {win.VK_OEM_1, false},
		"'":         {win.VK_OEM_7, false},
		"`":         {win.VK_OEM_3, false},
		"\\":        {win.VK_OEM_5, false},
		",":         {win.VK_OEM_COMMA, false},
		".":         {win.VK_OEM_PERIOD, false},
		"/":         {win.VK_OEM_2, false},
		"pageup":    {win.VK_PRIOR, true},
		"pagedown":  {win.VK_NEXT, true},
		"home":      {win.VK_HOME, true},
		"end":       {win.VK_END, true},
		"insert":    {win.VK_INSERT, true},
		"delete":    {win.VK_DELETE, true},
		"up":        {win.VK_UP, true},
		"down":      {win.VK_DOWN, true},
		"left":      {win.VK_LEFT, true},
		"right":     {win.VK_RIGHT, true},
		"win":       {win.VK_LWIN, true},
	}
	for c := 'a'; c <= 'z'; c++ {
		m[string(c)] = virtualKey{vk: uint16(c - 'a' + 'A')}
	}
	for c := '0'; c <= '9'; c++ {
		m[string(c)] = virtualKey{vk: uint16(c)}
	}
	for i := 0; i < 12; i++ {
		m[fmt.Sprintf("f%d", i+1)] = virtualKey{vk: uint16(win.VK_F1 + i)}
	}
	return m
}()

// sendInputDriver injects hardware scan codes with SendInput, games reading raw input
// ignore virtual-key only events.
type sendInputDriver struct{}

func newSystemDriver() (Driver, error) {
	return sendInputDriver{}, nil
}

func (sendInputDriver) KeyDown(key string) error { return sendKey(key, false) }

func (sendInputDriver) KeyUp(key string) error { return sendKey(key, true) }

func sendKey(key string, up bool) error {
	vk, ok := virtualKeys[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	scan, _, _ := winproc.MapVirtualKey.Call(uintptr(vk.vk), mapVKToVSC)
	if scan == 0 {
		return fmt.Errorf("no scan code for key %q", key)
	}

	flags := uint32(win.KEYEVENTF_SCANCODE)
	if vk.extended {
		flags |= win.KEYEVENTF_EXTENDEDKEY
	}
	if up {
		flags |= win.KEYEVENTF_KEYUP
	}

	in := win.KEYBD_INPUT{
		Type: win.INPUT_KEYBOARD,
		Ki: win.KEYBDINPUT{
			WScan:   uint16(scan),
			DwFlags: flags,
		},
	}
	if n := win.SendInput(1, unsafe.Pointer(&in), int32(unsafe.Sizeof(in))); n != 1 {
		return fmt.Errorf("SendInput rejected key %q", key)
	}
	return nil
}
