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

package mvm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"golang.org/x/crypto/chacha20"
)

// Wire format. Each instruction is a little-endian 16-byte record:
//
//	offset 0  opcode   u16
//	offset 2  pad      u16 (zero)
//	offset 4  operand  i64
//	offset 12 reserved u32 (zero)
//
// The side tables follow as length-prefixed blobs in populate order:
// constants, fields, methods, classes, table switches, lookup switches,
// multi-arrays, handlers, bootstraps. The image is snappy-compressed and the result XORed
// with a ChaCha20 keystream derived from the per-build key, so the bytes
// embedded in the generated library carry no plain structure. The generated
// runtime reverses both steps before interpreting.

// KeySize is the per-build key length in bytes.
const KeySize = chacha20.KeySize

const instRecordSize = 16

// ErrTruncatedImage is returned when a decode runs off the end of the image.
var ErrTruncatedImage = errors.New("mvm: truncated program image")

// Encode serializes prog and obfuscates it with key. A nil key skips the
// keystream (used by tests that inspect the raw image).
func Encode(prog *Program, key []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := func(v interface{}) {
		binary.Write(&buf, binary.LittleEndian, v) //nolint:errcheck // bytes.Buffer cannot fail
	}
	writeString := func(s string) {
		w(uint32(len(s)))
		buf.WriteString(s)
	}
	writeMembers := func(refs []MemberRef) {
		w(uint32(len(refs)))
		for _, r := range refs {
			writeString(r.Owner)
			writeString(r.Name)
			writeString(r.Desc)
			if r.Static {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
	}

	w(uint32(len(prog.Code)))
	w(uint32(prog.MaxLocals))
	w(uint32(prog.MaxStack))
	for _, in := range prog.Code {
		w(uint16(in.Op))
		w(uint16(0))
		w(in.A)
		w(uint32(0))
	}

	w(uint32(len(prog.Pool)))
	for _, e := range prog.Pool {
		buf.WriteByte(byte(e.Tag))
		w(e.Bits)
		writeString(e.Str)
	}
	writeMembers(prog.Fields)
	writeMembers(prog.Methods)

	w(uint32(len(prog.Classes)))
	for _, name := range prog.Classes {
		writeString(name)
	}

	w(uint32(len(prog.TableSw)))
	for _, t := range prog.TableSw {
		w(t.Low)
		w(t.High)
		w(t.Default)
		w(uint32(len(t.Targets)))
		for _, tgt := range t.Targets {
			w(tgt)
		}
	}
	w(uint32(len(prog.LookupSw)))
	for _, l := range prog.LookupSw {
		w(l.Default)
		w(uint32(len(l.Keys)))
		for i := range l.Keys {
			w(l.Keys[i])
			w(l.Targets[i])
		}
	}
	w(uint32(len(prog.MultiArr)))
	for _, ma := range prog.MultiArr {
		writeString(ma.Desc)
		w(ma.Dims)
	}
	w(uint32(len(prog.Handlers)))
	for _, h := range prog.Handlers {
		w(h.Start)
		w(h.End)
		w(h.Handler)
		writeString(h.Type)
	}
	w(uint32(len(prog.Bootstraps)))
	for _, b := range prog.Bootstraps {
		writeString(b.Name)
		writeString(b.Desc)
		writeString(b.BootOwner)
		writeString(b.BootName)
		writeString(b.BootDesc)
	}

	image := snappy.Encode(nil, buf.Bytes())
	if key == nil {
		return image, nil
	}
	return applyKeystream(image, key)
}

// Decode reverses Encode. It exists for the round-trip tests and documents
// byte-for-byte what the generated C++ runtime must do.
func Decode(image []byte, key []byte) (*Program, error) {
	var err error
	if key != nil {
		image, err = applyKeystream(image, key)
		if err != nil {
			return nil, err
		}
	}
	raw, err := snappy.Decode(nil, image)
	if err != nil {
		return nil, fmt.Errorf("mvm: corrupt program image: %w", err)
	}
	r := &wireReader{data: raw}

	prog := NewProgram()
	n := r.u32()
	prog.MaxLocals = int(r.u32())
	prog.MaxStack = int(r.u32())
	for i := uint32(0); i < n; i++ {
		op := Opcode(r.u16())
		r.u16() // pad
		a := r.i64()
		r.u32() // reserved
		prog.Code = append(prog.Code, Inst{Op: op, A: a})
	}

	for i, n := uint32(0), r.u32(); i < n; i++ {
		tag := PoolTag(r.u8())
		bits := r.i64()
		str := r.str()
		prog.Pool = append(prog.Pool, PoolEntry{Tag: tag, Bits: bits, Str: str})
	}
	readMembers := func() []MemberRef {
		var out []MemberRef
		for i, n := uint32(0), r.u32(); i < n; i++ {
			ref := MemberRef{Owner: r.str(), Name: r.str(), Desc: r.str()}
			ref.Static = r.u8() != 0
			out = append(out, ref)
		}
		return out
	}
	prog.Fields = readMembers()
	prog.Methods = readMembers()
	for i, n := uint32(0), r.u32(); i < n; i++ {
		prog.Classes = append(prog.Classes, r.str())
	}
	for i, n := uint32(0), r.u32(); i < n; i++ {
		t := TableSwitch{Low: r.i32(), High: r.i32(), Default: r.i32()}
		for j, m := uint32(0), r.u32(); j < m; j++ {
			t.Targets = append(t.Targets, r.i32())
		}
		prog.TableSw = append(prog.TableSw, t)
	}
	for i, n := uint32(0), r.u32(); i < n; i++ {
		l := LookupSwitch{Default: r.i32()}
		for j, m := uint32(0), r.u32(); j < m; j++ {
			l.Keys = append(l.Keys, r.i32())
			l.Targets = append(l.Targets, r.i32())
		}
		prog.LookupSw = append(prog.LookupSw, l)
	}
	for i, n := uint32(0), r.u32(); i < n; i++ {
		prog.MultiArr = append(prog.MultiArr, MultiArray{Desc: r.str(), Dims: r.i32()})
	}
	for i, n := uint32(0), r.u32(); i < n; i++ {
		h := TryRegion{Start: r.i32(), End: r.i32(), Handler: r.i32(), Type: r.str()}
		prog.Handlers = append(prog.Handlers, h)
	}
	for i, n := uint32(0), r.u32(); i < n; i++ {
		b := BootstrapRef{Name: r.str(), Desc: r.str(), BootOwner: r.str(), BootName: r.str(), BootDesc: r.str()}
		prog.Bootstraps = append(prog.Bootstraps, b)
	}
	if r.err != nil {
		return nil, r.err
	}
	return prog, nil
}

// applyKeystream XORs data with a ChaCha20 keystream. XOR is an involution,
// so the same call encodes and decodes.
func applyKeystream(data, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("mvm: key must be %d bytes, got %d", KeySize, len(key))
	}
	var nonce [chacha20.NonceSize]byte // image offset 0 keys the stream start
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

type wireReader struct {
	data []byte
	off  int
	err  error
}

func (r *wireReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = ErrTruncatedImage
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *wireReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *wireReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *wireReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *wireReader) i32() int32 { return int32(r.u32()) }

func (r *wireReader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *wireReader) str() string {
	n := r.u32()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}
