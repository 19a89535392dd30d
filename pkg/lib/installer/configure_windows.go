//go:build windows

package installer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modwslapi                    = windows.NewLazySystemDLL("wslapi.dll")
	procWslConfigureDistribution = modwslapi.NewProc("WslConfigureDistribution")
	procWslGetDistributionConfig = modwslapi.NewProc("WslGetDistributionConfiguration")
)

func configureDistribution(name string, uid uint32) error {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	if err := modwslapi.Load(); err != nil {
		return err
	}

	// keep the current flags
	var version, currentUID, flags, envCount uint32
	var env uintptr
	hr, _, _ := procWslGetDistributionConfig.Call(uintptr(unsafe.Pointer(name16)),
		uintptr(unsafe.Pointer(&version)), uintptr(unsafe.Pointer(&currentUID)), uintptr(unsafe.Pointer(&flags)),
		uintptr(unsafe.Pointer(&env)), uintptr(unsafe.Pointer(&envCount)))
	if int32(hr) < 0 {
		return fmt.Errorf("could not read the distro configuration: 0x%08X", uint32(hr))
	}
	if env != 0 {
		vars := unsafe.Slice((*uintptr)(unsafe.Pointer(env)), envCount)
		for _, v := range vars {
			windows.CoTaskMemFree(unsafe.Pointer(v))
		}
		windows.CoTaskMemFree(unsafe.Pointer(env))
	}

	hr, _, _ = procWslConfigureDistribution.Call(uintptr(unsafe.Pointer(name16)), uintptr(uid), uintptr(flags))
	if int32(hr) < 0 {
		return fmt.Errorf("could not configure distro to the new default UID %d: 0x%08X", uid, uint32(hr))
	}
	return nil
}
