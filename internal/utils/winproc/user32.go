//go:build windows

package winproc

import "golang.org/x/sys/windows"

var (
	USER32              = windows.NewLazySystemDLL("user32.dll")
	MapVirtualKey       = USER32.NewProc("MapVirtualKeyW")
	GetForegroundWindow = USER32.NewProc("GetForegroundWindow")
	SetForegroundWindow = USER32.NewProc("SetForegroundWindow")
)
