//go:build !windows

package main

import (
	"tunlink/internal/platform"
	"tunlink/internal/platform/posix"
)

func newPlatform(endpoint string) platform.Platform {
	return posix.NewPlatform(endpoint)
}
