// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"fmt"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

// Init synchronizes with the bootloader: pending input is discarded, the
// optional enter-bootloader command is sent, then 0x7F is written and an ACK
// awaited. There is no automatic retry.
func (e *Engine) Init() error {
	cmd := stm32boot.CmdInit
	return e.run(cmd, nil, func() error {
		err := e.doInit(cmd)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.state.synced = err == nil
		if err == nil {
			if e.state.Stage < StageSynced {
				e.state.Stage = StageSynced
			}
			return nil
		}
		// A NACK after a completed GET usually means the target was already
		// synced and took 0x7F as an opcode. The link is reported unsynced
		// but the discovered ledger and device stay valid.
		if e.state.Stage <= StageSynced {
			e.state.Stage = StageUnsynced
		}
		return err
	})
}

func (e *Engine) doInit(cmd stm32boot.Command) error {
	profile := e.config.Profile
	if len(profile.EnterCommand) > 0 {
		if err := e.send(cmd, noPage, profile.EnterCommand); err != nil {
			return err
		}
		e.log.Debug().Hex("enter", profile.EnterCommand).Dur("delay", profile.EnterDelay).Msg("sent enter-bootloader command")
		time.Sleep(profile.EnterDelay)
	}

	if err := e.conn.ResetInput(); err != nil {
		return &TransportError{Command: cmd, Op: "flush", Page: noPage, Err: err}
	}
	if err := e.send(cmd, noPage, []byte{stm32boot.Init}); err != nil {
		return err
	}
	return e.ack(cmd, "sync", noPage, 0, e.config.Timeout)
}

// GetCommands runs GET: it reads the bootloader version and the list of
// supported opcodes. The ledger and stage are committed only after the
// trailing ACK; any failure leaves them unchanged. GET has no precondition:
// a target still synced from an earlier connection answers it directly.
func (e *Engine) GetCommands() error {
	cmd := stm32boot.MustCommand(stm32boot.OpGet)
	return e.run(cmd, nil, func() error {
		if err := e.sendCommand(cmd, noPage); err != nil {
			return err
		}

		n, err := stm32boot.ReadByte(e.conn, e.config.Timeout)
		if err != nil {
			return e.replyError(cmd, "count", noPage, 0, err)
		}

		// Version byte followed by n opcodes
		reply := make([]byte, int(n)+1)
		if err := stm32boot.ReadFull(e.conn, reply, e.config.Timeout); err != nil {
			return e.replyError(cmd, "opcodes", noPage, 0, err)
		}
		if err := e.ack(cmd, "trailer", noPage, 0, e.config.Timeout); err != nil {
			return err
		}

		ledger := stm32boot.NewLedger(reply[1:]...)
		if int(n) > ledger.Len() {
			e.log.Warn().Int("declared", int(n)).Int("kept", ledger.Len()).Msg("GET reply exceeds ledger capacity")
		}

		e.mu.Lock()
		e.state.Version = reply[0]
		e.state.Commands = ledger
		e.state.synced = true
		if e.state.Stage < StageCommandsRead {
			e.state.Stage = StageCommandsRead
		}
		e.mu.Unlock()

		e.log.Info().
			Str("version", stm32boot.FormatVersion(reply[0])).
			Str("commands", stm32boot.FormatLedger(ledger)).
			Msg("bootloader commands")
		return nil
	})
}

// GetReadProtection runs GVRP: bootloader version and the two read
// protection option bytes.
func (e *Engine) GetReadProtection() error {
	cmd := stm32boot.MustCommand(stm32boot.OpGetVersion)
	return e.run(cmd, requireCommand(cmd, StageCommandsRead), func() error {
		if err := e.sendCommand(cmd, noPage); err != nil {
			return err
		}

		reply := make([]byte, 3)
		if err := stm32boot.ReadFull(e.conn, reply, e.config.Timeout); err != nil {
			return e.replyError(cmd, "reply", noPage, 0, err)
		}
		if err := e.ack(cmd, "trailer", noPage, 0, e.config.Timeout); err != nil {
			return err
		}

		e.mu.Lock()
		e.state.Version = reply[0]
		e.state.Protection = &ReadProtection{Version: reply[0], Option1: reply[1], Option2: reply[2]}
		e.mu.Unlock()
		return nil
	})
}

// GetDeviceID runs GID and resolves the product ID against the device table.
// An ID missing from the table leaves State.Device nil and is not an error.
func (e *Engine) GetDeviceID() error {
	cmd := stm32boot.MustCommand(stm32boot.OpGetID)
	return e.run(cmd, requireCommand(cmd, StageCommandsRead), func() error {
		if err := e.sendCommand(cmd, noPage); err != nil {
			return err
		}

		// The count byte is N-1 for N ID bytes
		n, err := stm32boot.ReadByte(e.conn, e.config.Timeout)
		if err != nil {
			return e.replyError(cmd, "count", noPage, 0, err)
		}
		id := make([]byte, int(n)+1)
		if err := stm32boot.ReadFull(e.conn, id, e.config.Timeout); err != nil {
			return e.replyError(cmd, "id", noPage, 0, err)
		}
		if err := e.ack(cmd, "trailer", noPage, 0, e.config.Timeout); err != nil {
			return err
		}

		var device *stm32boot.Device
		pid, idErr := stm32boot.DeviceIDFromBytes(id)
		if idErr == nil {
			if d, ok := stm32boot.LookupDevice(pid); ok {
				device = &d
			}
		}

		e.mu.Lock()
		e.state.ProductID = id
		e.state.DeviceID = pid
		e.state.Device = device
		e.state.Stage = StageIdentified
		e.mu.Unlock()

		ev := e.log.Info().Hex("product_id", id)
		if device != nil {
			ev = ev.Str("device", device.Name)
		} else {
			ev = ev.Str("device", "unknown")
		}
		ev.Msg("device identified")
		return nil
	})
}

// EraseExtended runs an extended mass erase (EER). The final ACK may take up to the
// erase timeout while the target wipes flash.
func (e *Engine) EraseExtended() error {
	cmd := stm32boot.MustCommand(stm32boot.OpExtendedErase)
	return e.run(cmd, requireCommand(cmd, StageIdentified), func() error {
		start := time.Now()
		if err := e.sendCommand(cmd, noPage); err != nil {
			return err
		}
		if err := e.send(cmd, noPage, stm32boot.MassEraseFrame()); err != nil {
			return err
		}
		if err := e.ack(cmd, "erase", noPage, 0, e.config.EraseTimeout); err != nil {
			return err
		}

		e.mu.Lock()
		e.state.Erase = &EraseResult{Elapsed: time.Since(start)}
		e.mu.Unlock()
		return nil
	})
}

// Jump runs GO to the profile start address. On success the target is
// running application firmware and all discovered state is discarded.
func (e *Engine) Jump() error {
	cmd := stm32boot.MustCommand(stm32boot.OpGo)
	return e.run(cmd, requireCommand(cmd, StageIdentified), func() error {
		if err := e.sendCommand(cmd, noPage); err != nil {
			return err
		}
		if err := e.send(cmd, noPage, stm32boot.EncodeAddress(e.config.Profile.StartAddress)); err != nil {
			return err
		}
		if err := e.ack(cmd, "address", noPage, 0, e.config.Timeout); err != nil {
			return err
		}

		e.mu.Lock()
		e.state = State{}
		e.mu.Unlock()

		e.log.Info().Str("address", fmt.Sprintf("0x%08X", e.config.Profile.StartAddress)).Msg("jumped to application")
		return nil
	})
}
