//go:build windows
// +build windows

package pkcs11

// PKCS11 support relies on cgo bindings that are not built on windows.
func Register() {
}
