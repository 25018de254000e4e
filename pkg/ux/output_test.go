// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	assert.False(t, p.Styled())
	assert.False(t, IsTerminal(&buf))
}

func TestPrinter_PlainStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)
	p.Title("ignored")
	p.Success("saved")
	p.Warning("careful")
	assert.Equal(t, "OK: saved\nWARN: careful\n", buf.String())
}

func TestPrinter_PlainTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)
	p.Table([]string{"ID", "NAME"}, [][]string{{"1", "a"}, {"2", "b"}})
	assert.Equal(t, "ID\tNAME\n1\ta\n2\tb\n", buf.String())
}

func TestPrinter_StyledTable(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf, styled: true}
	p.Table([]string{"ID", "NAME"}, [][]string{{"1", "alpha"}})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "╭")
}

func TestPrinter_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)
	p.KeyValues([][2]string{{"id", "x"}, {"chains", "4"}})
	assert.Equal(t, "id:     x\nchains: 4\n", buf.String())
}

func TestIcon_Render_Default(t *testing.T) {
	assert.Equal(t, "→", Icon("→").Render())
}
