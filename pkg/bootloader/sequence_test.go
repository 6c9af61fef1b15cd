// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlans(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
		want []Step
	}{
		{"probe", ProbePlan(false), []Step{StepInit, StepGet, StepDeviceID}},
		{"probe gvrp", ProbePlan(true), []Step{StepInit, StepGet, StepReadProtection, StepDeviceID}},
		{"read", ReadPlan("out", true), []Step{StepInit, StepGet, StepDeviceID, StepRead, StepGo}},
		{"write", WritePlan("in", true, true), []Step{StepInit, StepGet, StepDeviceID, StepErase, StepWrite, StepGo}},
		{"write no erase", WritePlan("in", false, false), []Step{StepInit, StepGet, StepDeviceID, StepWrite}},
		{"erase", ErasePlan(), []Step{StepInit, StepGet, StepDeviceID, StepErase}},
		{"go", JumpPlan(), []Step{StepInit, StepGet, StepDeviceID, StepGo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.plan.Steps)
		})
	}
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "EER", StepErase.String())
	assert.Equal(t, "GVRP", StepReadProtection.String())
	assert.Equal(t, "Step(42)", Step(42).String())
}

func TestRunWritePlan(t *testing.T) {
	target := newSimTarget(4)
	for i := range target.flash {
		target.flash[i] = 0x00
	}
	eng := testEngine(target)

	src := bytes.Repeat([]byte{0xC3}, 300)
	report, err := eng.Run(WritePlan(writeFile(t, src), true, true))
	require.NoError(t, err)

	assert.Equal(t, []Step{StepInit, StepGet, StepDeviceID, StepErase, StepWrite, StepGo}, report.Completed)
	assert.Nil(t, report.Failed)
	require.NotNil(t, report.Write)
	assert.Equal(t, 2, report.Write.Pages)

	// Snapshot is taken before GO clears discovery state
	assert.Equal(t, StageIdentified, report.State.Stage)
	assert.NotNil(t, report.State.Erase)

	assert.Equal(t, src, target.flash[:300])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, len(target.flash)-300), target.flash[300:])
	assert.True(t, target.jumped)
	assert.Equal(t, StageUnsynced, eng.State().Stage)
}

func TestRunReadPlan(t *testing.T) {
	target := newSimTarget(4)
	eng := testEngine(target)

	out := filepath.Join(t.TempDir(), "dump.bin")
	report, err := eng.Run(ReadPlan(out, false))
	require.NoError(t, err)
	require.NotNil(t, report.Read)
	assert.Equal(t, 4, report.Read.Pages)
	assert.Equal(t, StageIdentified, report.State.Stage)
	assert.False(t, target.jumped)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	target := newSimTarget(4)
	target.ops = []byte{stm32boot.OpGet, stm32boot.OpGetID, stm32boot.OpWriteMemory}
	eng := testEngine(target)

	report, err := eng.Run(WritePlan("unused.bin", true, true))

	var ce *PreconditionError
	require.ErrorAs(t, err, &ce)
	require.NotNil(t, report.Failed)
	assert.Equal(t, StepErase, *report.Failed)
	assert.Equal(t, []Step{StepInit, StepGet, StepDeviceID}, report.Completed)
	assert.Equal(t, 0, countOpcode(target.frames, stm32boot.OpWriteMemory))
}
