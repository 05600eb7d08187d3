//go:build windows

package utils

import (
	"syscall"

	"github.com/beemacro/beemacro/internal/utils/winproc"
	"golang.org/x/sys/windows"
)

// ShowDialog pops a blocking message box, then gives focus back to whatever window
// had it, usually the game.
func ShowDialog(title, message string) {
	hwnd, _, _ := winproc.GetForegroundWindow.Call()

	t, _ := syscall.UTF16PtrFromString(title)
	txt, _ := syscall.UTF16PtrFromString(message)
	windows.MessageBox(0, txt, t, windows.MB_ICONWARNING)

	if hwnd != 0 {
		winproc.SetForegroundWindow.Call(hwnd)
	}
}
