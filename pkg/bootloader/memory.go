// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"fmt"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

// ReadMemory dumps flash page by page into the file at path, starting at the
// profile base address.
//
// With FullRead off, the read stops at the first page boundary after a run
// of more than SkipThreshold consecutive 0xFF bytes. This is lossy: an image
// with a long internal run of 0xFF is truncated there. The file is valid up
// to the last page flushed.
func (e *Engine) ReadMemory(path string) (ReadResult, error) {
	cmd := stm32boot.MustCommand(stm32boot.OpReadMemory)
	var result ReadResult

	err := e.run(cmd, requireCommand(cmd, StageIdentified), func() error {
		sink, err := CreatePageSink(path)
		if err != nil {
			return err
		}
		defer sink.Close()

		start := time.Now()
		profile := e.config.Profile
		pageSize := profile.PageSize
		total := profile.PageCount * pageSize
		length := byte(pageSize - 1)

		buf := make([]byte, pageSize)
		run := 0
		stopped := false

		for page := 0; page < profile.PageCount; page++ {
			if !profile.FullRead && run > profile.SkipThreshold {
				stopped = true
				e.log.Info().Int("page", page).Int("run", run).Msg("empty flash reached, stopping read")
				break
			}

			addr := profile.BaseAddress + uint32(page*pageSize)
			if err := e.sendCommand(cmd, page); err != nil {
				return err
			}
			if err := e.send(cmd, page, stm32boot.EncodeAddress(addr)); err != nil {
				return err
			}
			if err := e.ack(cmd, "address", page, 0, e.config.Timeout); err != nil {
				return err
			}
			if err := e.send(cmd, page, stm32boot.EncodeLength(length)); err != nil {
				return err
			}
			if err := e.ack(cmd, "length", page, 0, e.config.Timeout); err != nil {
				return err
			}

			for off := 0; off < pageSize; off++ {
				b, err := stm32boot.ReadByte(e.conn, e.config.Timeout)
				if err != nil {
					return e.replyError(cmd, "data", page, off, err)
				}
				buf[off] = b
				if b == 0xFF {
					run++
				} else {
					run = 0
				}
				e.progress(Progress{
					Command: cmd,
					Page:    page,
					Offset:  off + 1,
					Pages:   profile.PageCount,
					Bytes:   page*pageSize + off + 1,
					Total:   total,

					PageComplete: off == pageSize-1,
				})
			}

			if err := sink.WritePage(buf); err != nil {
				return err
			}
			e.log.Debug().Int("page", page).Str("address", fmt.Sprintf("0x%08X", addr)).Msg("page read")
		}

		result = ReadResult{
			Path:    path,
			Pages:   sink.Pages(),
			Bytes:   sink.Bytes(),
			Stopped: stopped,
			Elapsed: time.Since(start),
		}
		r := result
		e.mu.Lock()
		e.state.Read = &r
		e.mu.Unlock()
		return nil
	})
	return result, err
}

// WriteMemory programs the file at path page by page from the profile base
// address. Each page is preceded by the configured pacing delay and sent as
// data followed by the block checksum. The length byte is folded into the
// checksum but only framed on the wire when WriteLengthPrefix is set.
func (e *Engine) WriteMemory(path string) (WriteResult, error) {
	cmd := stm32boot.MustCommand(stm32boot.OpWriteMemory)
	var result WriteResult

	err := e.run(cmd, requireCommand(cmd, StageIdentified), func() error {
		src, err := OpenPageSource(path, e.config.Profile.PageSize)
		if err != nil {
			return err
		}
		defer src.Close()

		profile := e.config.Profile
		pageSize := profile.PageSize
		if src.Pages() > profile.PageCount {
			return &FileError{Path: path, Op: "check", Err: fmt.Errorf("%w: %d pages, limit %d", ErrImageTooLarge, src.Pages(), profile.PageCount)}
		}

		start := time.Now()
		length := byte(pageSize - 1)
		sent := 0
		pages := 0

		for page := 0; page < profile.PageCount; page++ {
			data, n, final, err := src.Next()
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}

			if e.config.Pacing > 0 {
				time.Sleep(e.config.Pacing)
			}

			addr := profile.BaseAddress + uint32(page*pageSize)
			if err := e.sendCommand(cmd, page); err != nil {
				return err
			}
			if err := e.send(cmd, page, stm32boot.EncodeAddress(addr)); err != nil {
				return err
			}
			if err := e.ack(cmd, "address", page, 0, e.config.Timeout); err != nil {
				return err
			}

			frame := make([]byte, 0, pageSize+2)
			if profile.WriteLengthPrefix {
				frame = append(frame, length)
			}
			frame = append(frame, data...)
			frame = append(frame, stm32boot.BlockChecksum(length, data))
			if err := e.send(cmd, page, frame); err != nil {
				return err
			}
			if err := e.ack(cmd, "data", page, pageSize, e.config.Timeout); err != nil {
				return err
			}

			// The page is acknowledged as a whole; report its bytes
			// one by one like READ does
			for off := 0; off < pageSize; off++ {
				e.progress(Progress{
					Command: cmd,
					Page:    page,
					Offset:  off + 1,
					Pages:   src.Pages(),
					Bytes:   page*pageSize + off + 1,
					Total:   src.Pages() * pageSize,

					PageComplete: off == pageSize-1,
				})
			}
			sent += n
			pages++
			e.log.Debug().Int("page", page).Str("address", fmt.Sprintf("0x%08X", addr)).Int("bytes", n).Msg("page written")

			if final {
				break
			}
		}

		result = WriteResult{
			Path:    path,
			Pages:   pages,
			Bytes:   sent,
			Elapsed: time.Since(start),
		}
		r := result
		e.mu.Lock()
		e.state.Write = &r
		e.mu.Unlock()
		return nil
	})
	return result, err
}
