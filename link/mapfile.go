// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bufio"
	"fmt"
	"io"

	"github.com/beevik/gbasm/object"
)

// WriteMap writes a listing of every placed section grouped by region and
// bank, followed by a summary of the space used in each region.
func (r *Result) WriteMap(w io.Writer) error {
	bw := bufio.NewWriter(w)

	type usage struct {
		used, banks int
	}
	var order []object.Region
	summary := make(map[object.Region]*usage)

	for i := 0; i < len(r.Placements); {
		region, bank := r.Placements[i].Region, r.Placements[i].Bank
		j := i
		for j < len(r.Placements) && r.Placements[j].Region == region && r.Placements[j].Bank == bank {
			j++
		}
		group := r.Placements[i:j]
		i = j

		u, ok := summary[region]
		if !ok {
			u = &usage{}
			summary[region] = u
			order = append(order, region)
		}
		u.banks++

		fmt.Fprintf(bw, "%s bank #%d:\n", region, bank)
		used := 0
		for _, p := range group {
			used += p.Size()
			if p.Size() == 0 {
				fmt.Fprintf(bw, "  SECTION: $%04X (0 bytes) [%q]\n", p.Start, p.Section.Name)
			} else {
				fmt.Fprintf(bw, "  SECTION: $%04X-$%04X ($%04X bytes) [%q]\n", p.Start, p.End-1, p.Size(), p.Section.Name)
			}
			for _, sym := range r.Symbols {
				if sym.Region == region && sym.Bank == bank && sym.Address >= p.Start && sym.Address < p.End {
					fmt.Fprintf(bw, "           $%04X = %s\n", sym.Address, sym.Name)
				}
			}
		}
		u.used += used
		fmt.Fprintf(bw, "    SLACK: $%04X bytes\n\n", region.Info().Size()-used)
	}

	fmt.Fprintln(bw, "SUMMARY:")
	for _, region := range order {
		u := summary[region]
		total := u.banks * region.Info().Size()
		fmt.Fprintf(bw, "  %s: %d bytes used / %d free in %d bank(s)\n", region, u.used, total-u.used, u.banks)
	}
	return bw.Flush()
}
