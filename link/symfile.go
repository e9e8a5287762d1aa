// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/gbasm/object"
)

const symFileHeader = "; File generated by gbasm"

// A SymbolFile maps the labels of a linked ROM to their banks and
// addresses.
type SymbolFile struct {
	Symbols []Symbol // sorted by bank, address and name
}

// WriteSymbols writes the symbol file of the linked ROM.
func (r *Result) WriteSymbols(w io.Writer) error {
	s := SymbolFile{Symbols: r.Symbols}
	_, err := s.WriteTo(w)
	return err
}

// Search returns the first symbol located at the requested bank and
// address.
func (s *SymbolFile) Search(bank, addr int) (name string, ok bool) {
	i := sort.Search(len(s.Symbols), func(i int) bool {
		sym := s.Symbols[i]
		return sym.Bank > bank || (sym.Bank == bank && sym.Address >= addr)
	})
	if i < len(s.Symbols) && s.Symbols[i].Bank == bank && s.Symbols[i].Address == addr {
		return s.Symbols[i].Name, true
	}
	return "", false
}

// Lookup returns the symbol with the requested name.
func (s *SymbolFile) Lookup(name string) (Symbol, bool) {
	for _, sym := range s.Symbols {
		if sym.Name == name {
			return sym, true
		}
	}
	return Symbol{}, false
}

// ReadFrom reads the contents of a symbol file. Comment lines and blank
// lines are ignored.
func (s *SymbolFile) ReadFrom(r io.Reader) (n int64, err error) {
	s.Symbols = nil
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		n += int64(len(text)) + 1

		text = strings.TrimSpace(text)
		if text == "" || text[0] == ';' {
			continue
		}

		loc, name, ok := strings.Cut(text, " ")
		bankText, addrText, ok2 := strings.Cut(loc, ":")
		if !ok || !ok2 {
			return n, fmt.Errorf("symbol file line %d: expected 'BB:AAAA name'", line)
		}
		bank, err := strconv.ParseUint(bankText, 16, 16)
		if err != nil {
			return n, fmt.Errorf("symbol file line %d: invalid bank '%s'", line, bankText)
		}
		addr, err := strconv.ParseUint(addrText, 16, 16)
		if err != nil {
			return n, fmt.Errorf("symbol file line %d: invalid address '%s'", line, addrText)
		}

		s.Symbols = append(s.Symbols, Symbol{
			Name:    strings.TrimSpace(name),
			Region:  regionOf(int(addr)),
			Bank:    int(bank),
			Address: int(addr),
		})
	}
	if err := scanner.Err(); err != nil {
		return n, err
	}

	sortSymbols(s.Symbols)
	return n, nil
}

// WriteTo writes the contents of the symbol file to an output stream.
func (s *SymbolFile) WriteTo(w io.Writer) (n int64, err error) {
	bw := bufio.NewWriter(w)
	nn, _ := fmt.Fprintln(bw, symFileHeader)
	n += int64(nn)
	for _, sym := range s.Symbols {
		nn, _ = fmt.Fprintf(bw, "%02X:%04X %s\n", sym.Bank, sym.Address, sym.Name)
		n += int64(nn)
	}
	return n, bw.Flush()
}

// regionOf returns the region containing an address.
func regionOf(addr int) object.Region {
	for r := object.ROM0; r.Valid(); r++ {
		info := r.Info()
		if addr >= info.Start && addr <= info.End {
			return r
		}
	}
	return object.ROM0
}
