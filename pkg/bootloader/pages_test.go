// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSource(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		pages []int // file bytes per page
	}{
		{"empty", 0, nil},
		{"short", 100, []int{100}},
		{"exact", 512, []int{256, 256}},
		{"partial tail", 600, []int{256, 256, 88}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0x5A}, tt.size)
			src, err := OpenPageSource(writeFile(t, data), 256)
			require.NoError(t, err)
			defer src.Close()

			assert.Equal(t, len(tt.pages), src.Pages())

			var got []int
			for {
				page, n, final, err := src.Next()
				require.NoError(t, err)
				if n == 0 {
					break
				}
				require.Len(t, page, 256)
				assert.Equal(t, bytes.Repeat([]byte{0xFF}, 256-n), page[n:])
				got = append(got, n)
				if final {
					break
				}
			}
			assert.Equal(t, tt.pages, got)
		})
	}
}

func TestPageSourceMissing(t *testing.T) {
	_, err := OpenPageSource(filepath.Join(t.TempDir(), "nope.bin"), 256)
	var fe *FileError
	assert.ErrorAs(t, err, &fe)
}

func TestPageSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("previous contents"), 0o644))

	sink, err := CreatePageSink(path)
	require.NoError(t, err)

	// Nothing flushed yet: the old file is untouched
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("previous contents"), data)

	require.NoError(t, sink.WritePage([]byte{1, 2}))
	require.NoError(t, sink.WritePage([]byte{3, 4}))
	require.NoError(t, sink.Close())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
	assert.Equal(t, 2, sink.Pages())
	assert.Equal(t, 4, sink.Bytes())
}
