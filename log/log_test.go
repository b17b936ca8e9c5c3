// Copyright 2026 The go-shroud Authors
// This file is part of go-shroud.
//
// go-shroud is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-shroud is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-shroud. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestKeyValueFormatting(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Info("Lowered method", "class", "com/example/M", "count", 3)
	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Fatalf("level tag missing: %q", out)
	}
	if !strings.Contains(out, "Lowered method") {
		t.Fatalf("message missing: %q", out)
	}
	if !strings.Contains(out, "class=com/example/M") || !strings.Contains(out, "count=3") {
		t.Fatalf("context missing: %q", out)
	}
}

func TestChildContext(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	l := New("module", "compiler")
	l.Warn("Flattening skipped", "reason", "subroutines")
	out := buf.String()
	if !strings.Contains(out, "module=compiler") {
		t.Fatalf("inherited context missing: %q", out)
	}
	if !strings.Contains(out, "reason=subroutines") {
		t.Fatalf("call context missing: %q", out)
	}
}

func TestQuotingValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Info("msg", "err", "two words")
	if !strings.Contains(buf.String(), `err="two words"`) {
		t.Fatalf("unquoted value with spaces: %q", buf.String())
	}
}

func TestLvlFromString(t *testing.T) {
	for in, want := range map[string]Lvl{
		"trace": LvlTrace, "debug": LvlDebug, "info": LvlInfo,
		"warn": LvlWarn, "error": LvlError, "3": LvlInfo,
	} {
		got, err := LvlFromString(in)
		if err != nil || got != want {
			t.Errorf("LvlFromString(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := LvlFromString("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}
