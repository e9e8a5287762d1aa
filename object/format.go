// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const signature = "GBO1"

// Limits enforced when reading an object module.
const (
	MaxSectionSize = 0x4000 // largest memory region
	MaxExprSize    = 0x10000
)

// ErrBadSignature is returned when reading data that is not an object
// module.
var ErrBadSignature = errors.New("not an object module")

// An encoder writes the primitive fields of an object module and keeps
// track of the first error and the number of bytes written.
type encoder struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	var nn int
	nn, e.err = e.w.Write(b)
	e.n += int64(nn)
}

func (e *encoder) byte(b byte) {
	e.bytes([]byte{b})
}

func (e *encoder) int(v int) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
	e.bytes(b[:])
}

func (e *encoder) string(s string) {
	e.bytes([]byte(s))
	e.byte(0)
}

// WriteTo writes the module's binary encoding to w.
func (m *Module) WriteTo(w io.Writer) (n int64, err error) {
	e := &encoder{w: bufio.NewWriter(w)}

	e.bytes([]byte(signature))
	e.int(len(m.Symbols))
	e.int(len(m.Sections))

	for i := range m.Symbols {
		s := &m.Symbols[i]
		e.string(s.Name)
		e.byte(byte(s.Kind))
		if s.Kind != Imported {
			e.string(s.File)
			e.int(s.Line)
			e.int(s.Section)
			e.int(s.Value)
		}
	}

	for i := range m.Sections {
		s := &m.Sections[i]
		e.string(s.Name)
		e.int(s.Size)
		e.byte(byte(s.Region))
		e.int(s.Address)
		e.int(s.Bank)
		e.int(s.Align)
		if !s.Region.IsROM() {
			continue
		}
		if len(s.Data) != s.Size && e.err == nil {
			e.err = fmt.Errorf("section '%s' has %d data bytes but size %d", s.Name, len(s.Data), s.Size)
		}
		e.bytes(s.Data)
		e.int(len(s.Patches))
		for j := range s.Patches {
			p := &s.Patches[j]
			e.string(p.File)
			e.int(p.Line)
			e.int(p.Offset)
			e.byte(byte(p.Kind))
			e.int(len(p.Expr))
			e.bytes(p.Expr)
		}
	}

	if e.err == nil {
		e.err = e.w.Flush()
	}
	return e.n, e.err
}

// A decoder reads the primitive fields of an object module and keeps
// track of the first error and the number of bytes read.
type decoder struct {
	r   *bufio.Reader
	n   int64
	err error
}

func (d *decoder) bytes(count int) []byte {
	if d.err != nil {
		return nil
	}
	if count < 0 {
		d.err = fmt.Errorf("negative length %d", count)
		return nil
	}
	b := make([]byte, count)
	var nn int
	nn, d.err = io.ReadFull(d.r, b)
	d.n += int64(nn)
	return b
}

func (d *decoder) byte() byte {
	b := d.bytes(1)
	if d.err != nil {
		return 0
	}
	return b[0]
}

func (d *decoder) int() int {
	b := d.bytes(4)
	if d.err != nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	s, err := d.r.ReadString(0)
	d.n += int64(len(s))
	if err != nil {
		d.err = err
		return ""
	}
	return s[:len(s)-1]
}

// ReadFrom replaces the module's contents with a binary encoding read
// from r.
func (m *Module) ReadFrom(r io.Reader) (n int64, err error) {
	d := &decoder{r: bufio.NewReader(r)}

	if sig := d.bytes(len(signature)); d.err == nil && string(sig) != signature {
		return d.n, ErrBadSignature
	}
	nsym := d.int()
	nsect := d.int()
	if d.err == nil && (nsym < 0 || nsect < 0) {
		return d.n, fmt.Errorf("invalid symbol or section count")
	}

	m.Symbols = make([]Symbol, 0, min(nsym, 1024))
	for i := 0; i < nsym && d.err == nil; i++ {
		s := Symbol{Name: d.string(), Kind: SymbolKind(d.byte()), Section: -1}
		if s.Kind != Imported {
			s.File = d.string()
			s.Line = d.int()
			s.Section = d.int()
			s.Value = d.int()
		}
		m.Symbols = append(m.Symbols, s)
	}

	m.Sections = make([]Section, 0, min(nsect, 1024))
	for i := 0; i < nsect && d.err == nil; i++ {
		s := Section{
			Name:    d.string(),
			Size:    d.int(),
			Region:  Region(d.byte()),
			Address: d.int(),
			Bank:    d.int(),
			Align:   d.int(),
		}
		if d.err == nil && (s.Size < 0 || s.Size > MaxSectionSize) {
			return d.n, fmt.Errorf("section '%s' has invalid size %d", s.Name, s.Size)
		}
		if s.Region.IsROM() {
			s.Data = d.bytes(s.Size)
			npatch := d.int()
			for j := 0; j < npatch && d.err == nil; j++ {
				p := Patch{
					File:   d.string(),
					Line:   d.int(),
					Offset: d.int(),
					Kind:   PatchKind(d.byte()),
				}
				size := d.int()
				if d.err == nil && (size < 0 || size > MaxExprSize) {
					return d.n, fmt.Errorf("patch expression in section '%s' has invalid length %d", s.Name, size)
				}
				p.Expr = RPN(d.bytes(size))
				s.Patches = append(s.Patches, p)
			}
		}
		m.Sections = append(m.Sections, s)
	}

	if d.err == io.EOF || d.err == io.ErrUnexpectedEOF {
		d.err = fmt.Errorf("truncated object module: %w", io.ErrUnexpectedEOF)
	}
	return d.n, d.err
}

// ReadFile loads an object module from disk.
func ReadFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &Module{Path: path}
	if _, err := m.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteFile saves an object module to disk.
func (m *Module) WriteFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := m.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}
