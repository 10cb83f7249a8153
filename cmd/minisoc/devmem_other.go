//go:build !linux

package main

import (
	"context"
	"errors"

	"minisoc/config"
)

func runDevMem(context.Context, *options, config.Config) error {
	return errors.New("devmem mode is only supported on linux")
}
