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

package compiler

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Manifest records what a build did: which methods were lowered to which
// backend, which were flattened, and the key the embedded images were
// obfuscated with. Together with the generated sources it makes the build
// reproducible and auditable.
type Manifest struct {
	BuildID string          `json:"buildId"`
	VMKey   string          `json:"vmKey"`
	Classes []ClassManifest `json:"classes"`
}

// ClassManifest is one class's entry.
type ClassManifest struct {
	Name      string   `json:"name"`
	ClassID   int      `json:"classId"`
	Lowered   []string `json:"lowered,omitempty"`
	VMBacked  []string `json:"vmBacked,omitempty"`
	Flattened []string `json:"flattened,omitempty"`
	Kept      []string `json:"kept,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

func buildManifest(c *Compiler, results []*ClassResult) *Manifest {
	m := &Manifest{
		BuildID: uuid.New().String(),
		VMKey:   hex.EncodeToString(c.key),
	}
	for _, r := range results {
		m.Classes = append(m.Classes, ClassManifest{
			Name:      r.Artifacts.Name,
			ClassID:   r.Artifacts.ClassID,
			Lowered:   r.Lowered,
			VMBacked:  r.VMBacked,
			Flattened: r.Flattened,
			Kept:      r.Kept,
			Errors:    r.Errors,
		})
	}
	return m
}
