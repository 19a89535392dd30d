//go:build windows

package event

func cleanup(string) {}
