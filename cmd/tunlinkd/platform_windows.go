//go:build windows

package main

import (
	"tunlink/internal/platform"
	"tunlink/internal/platform/windows"
)

func newPlatform(endpoint string) platform.Platform {
	return windows.NewPlatform(endpoint)
}
