// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"fmt"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

// Step is one command in a Plan
type Step int

const (
	StepInit Step = iota
	StepGet
	StepReadProtection
	StepDeviceID
	StepErase
	StepRead
	StepWrite
	StepGo
)

func (s Step) String() string {
	if s < StepInit || s > StepGo {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return s.Command().Name
}

// Plan is an ordered list of steps run back to back. Each step starts only
// after the previous one completed successfully.
type Plan struct {
	Steps  []Step
	Source string // WRITE input
	Output string // READ output
}

// discovery is the prefix every compound operation starts with
func discovery(gvrp bool) []Step {
	steps := []Step{StepInit, StepGet}
	if gvrp {
		steps = append(steps, StepReadProtection)
	}
	return append(steps, StepDeviceID)
}

// ProbePlan synchronizes and identifies the target
func ProbePlan(gvrp bool) Plan {
	return Plan{Steps: discovery(gvrp)}
}

// ReadPlan dumps flash to output, optionally starting the application after
func ReadPlan(output string, jump bool) Plan {
	steps := append(discovery(false), StepRead)
	if jump {
		steps = append(steps, StepGo)
	}
	return Plan{Steps: steps, Output: output}
}

// WritePlan programs source, optionally mass erasing first and starting the
// application after.
func WritePlan(source string, erase, jump bool) Plan {
	steps := discovery(false)
	if erase {
		steps = append(steps, StepErase)
	}
	steps = append(steps, StepWrite)
	if jump {
		steps = append(steps, StepGo)
	}
	return Plan{Steps: steps, Source: source}
}

// ErasePlan mass erases flash
func ErasePlan() Plan {
	return Plan{Steps: append(discovery(false), StepErase)}
}

// JumpPlan starts the application
func JumpPlan() Plan {
	return Plan{Steps: append(discovery(false), StepGo)}
}

// Report collects the outcome of a Plan
type Report struct {
	Completed []Step
	Failed    *Step
	State     State // Snapshot taken before GO resets it
	Read      *ReadResult
	Write     *WriteResult
}

// Run executes plan, stopping at the first failing step. The returned report
// is valid even when err is non-nil.
func (e *Engine) Run(plan Plan) (*Report, error) {
	report := &Report{}

	for _, step := range plan.Steps {
		if step == StepGo {
			report.State = e.State()
		}

		if err := e.runStep(step, plan, report); err != nil {
			s := step
			report.Failed = &s
			if step != StepGo {
				report.State = e.State()
			}
			return report, fmt.Errorf("%s: %w", step, err)
		}
		report.Completed = append(report.Completed, step)
	}

	if len(plan.Steps) == 0 || plan.Steps[len(plan.Steps)-1] != StepGo {
		report.State = e.State()
	}
	return report, nil
}

func (e *Engine) runStep(step Step, plan Plan, report *Report) error {
	switch step {
	case StepInit:
		return e.Init()
	case StepGet:
		return e.GetCommands()
	case StepReadProtection:
		return e.GetReadProtection()
	case StepDeviceID:
		return e.GetDeviceID()
	case StepErase:
		return e.EraseExtended()
	case StepRead:
		r, err := e.ReadMemory(plan.Output)
		if err == nil {
			report.Read = &r
		}
		return err
	case StepWrite:
		r, err := e.WriteMemory(plan.Source)
		if err == nil {
			report.Write = &r
		}
		return err
	case StepGo:
		return e.Jump()
	default:
		return fmt.Errorf("unknown step %d", int(step))
	}
}

// Command returns the bootloader command a step runs
func (s Step) Command() stm32boot.Command {
	switch s {
	case StepInit:
		return stm32boot.CmdInit
	case StepGet:
		return stm32boot.MustCommand(stm32boot.OpGet)
	case StepReadProtection:
		return stm32boot.MustCommand(stm32boot.OpGetVersion)
	case StepDeviceID:
		return stm32boot.MustCommand(stm32boot.OpGetID)
	case StepErase:
		return stm32boot.MustCommand(stm32boot.OpExtendedErase)
	case StepRead:
		return stm32boot.MustCommand(stm32boot.OpReadMemory)
	case StepWrite:
		return stm32boot.MustCommand(stm32boot.OpWriteMemory)
	default:
		return stm32boot.MustCommand(stm32boot.OpGo)
	}
}
