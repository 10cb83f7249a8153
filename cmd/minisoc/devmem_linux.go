package main

import (
	"context"
	"fmt"

	"minisoc/config"
	"minisoc/mmio"
)

// runDevMem runs the firmware on the physical registers. The operator talks
// to the SoC's own UART, not to this process.
func runDevMem(ctx context.Context, o *options, cfg config.Config) error {
	mem, err := mmio.OpenDevMem(o.devmem, cfg.Spans()...)
	if err != nil {
		return err
	}
	defer mem.Close()
	logger("[devmem] ", o.verbose).Printf("mapped %s for %d spans", o.devmem, len(cfg.Spans()))

	if err := runFirmware(ctx, o, cfg, mem); err != nil {
		return fmt.Errorf("devmem: %w", err)
	}
	return nil
}
