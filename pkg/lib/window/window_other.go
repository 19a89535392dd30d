//go:build !windows

package window

type systemOps struct{}

func (systemOps) Show(Handle) bool                { return false }
func (systemOps) Hide(Handle) bool                { return false }
func (systemOps) PlaceBehind(Handle, Handle) bool { return false }
func (systemOps) Close(Handle) bool               { return false }
func (systemOps) Quit(Handle) bool                { return false }

func (systemOps) Find(string, string) (Handle, error) {
	return 0, ErrUnsupported
}

func (systemOps) FindOnThread(uint32, string) (Handle, error) {
	return 0, ErrUnsupported
}

// Console returns 0: there is no console window to manage.
func Console(string) Handle {
	return 0
}
