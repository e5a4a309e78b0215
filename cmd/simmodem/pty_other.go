//go:build !linux && !darwin

package main

import (
	"github.com/aymanbagabas/go-pty"
)

func openTTY() (ttyDevice, error) {
	return pty.New()
}
