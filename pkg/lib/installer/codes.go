package installer

import "fmt"

// Code is an HRESULT explaining why the installer workflow gave up.
type Code uint32

// Failure codes reported through UpstreamDefaultInstall.
const (
	ErrPathNotFound                Code = 0x00000003
	EAbort                         Code = 0x80004004
	EFail                          Code = 0x80004005
	ENotImpl                       Code = 0x80004001
	EUnexpected                    Code = 0x8000FFFF
	EHandle                        Code = 0x80070006
	ComAdminCantCopyFile           Code = 0x8011040D
	EApplicationActivationTimedOut Code = 0x8027025A
)

var codeNames = map[Code]string{
	ErrPathNotFound:                "ERROR_PATH_NOT_FOUND",
	EAbort:                         "E_ABORT",
	EFail:                          "E_FAIL",
	ENotImpl:                       "E_NOTIMPL",
	EUnexpected:                    "E_UNEXPECTED",
	EHandle:                        "E_HANDLE",
	ComAdminCantCopyFile:           "COMADMIN_E_CANTCOPYFILE",
	EApplicationActivationTimedOut: "E_APPLICATION_ACTIVATION_TIMED_OUT",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(c))
}

// Error makes a Code usable as an error value.
func (c Code) Error() string {
	return fmt.Sprintf("installer failed with %s (0x%08X)", c.String(), uint32(c))
}
