// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import "strings"

// A Region is a class of Game Boy memory with its own address range and
// bank count.
type Region byte

// All memory regions, in object file encoding order.
const (
	ROM0 Region = iota
	ROMX
	VRAM
	SRAM
	WRAM0
	WRAMX
	OAM
	HRAM
)

// BankSize is the size of one switchable ROM bank.
const BankSize = 0x4000

// RegionInfo describes a region's address range (inclusive) and the range
// of banks it may be placed in.
type RegionInfo struct {
	Name    string
	Start   int
	End     int
	MinBank int
	MaxBank int
}

// Size returns the number of bytes available in one bank of the region.
func (r RegionInfo) Size() int {
	return r.End - r.Start + 1
}

var regions = []RegionInfo{
	{"ROM0", 0x0000, 0x3fff, 0, 0},
	{"ROMX", 0x4000, 0x7fff, 1, 511},
	{"VRAM", 0x8000, 0x9fff, 0, 1},
	{"SRAM", 0xa000, 0xbfff, 0, 255},
	{"WRAM0", 0xc000, 0xcfff, 0, 0},
	{"WRAMX", 0xd000, 0xdfff, 1, 7},
	{"OAM", 0xfe00, 0xfe9f, 0, 0},
	{"HRAM", 0xff80, 0xfffe, 0, 0},
}

// Valid returns true if r is a known region.
func (r Region) Valid() bool {
	return int(r) < len(regions)
}

// Info returns the address and bank ranges of the region.
func (r Region) Info() RegionInfo {
	return regions[r]
}

// IsROM returns true if sections in the region carry data.
func (r Region) IsROM() bool {
	return r == ROM0 || r == ROMX
}

// Banked returns true if the region has more than one bank.
func (r Region) Banked() bool {
	info := regions[r]
	return info.MaxBank > info.MinBank
}

func (r Region) String() string {
	if r.Valid() {
		return regions[r].Name
	}
	return "INVALID"
}

// ParseRegion returns the region with the given case-insensitive name.
func ParseRegion(name string) (Region, bool) {
	for i, info := range regions {
		if strings.EqualFold(info.Name, name) {
			return Region(i), true
		}
	}
	return 0, false
}
