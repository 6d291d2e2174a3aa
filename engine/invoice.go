/*
invoice.go - Gapless invoice numbering

PURPOSE:
  Legally sequential invoice numbers: within a year the sequence is exactly
  1..N with no gaps and no repeats; the sequence resets to 1 when the year
  changes. Numbering is owned here exclusively - no other component
  constructs invoice numbers.
*/
package engine

import (
	"fmt"
	"sort"
	"time"
)

// Format renders the legal form YYYY-NNNNN (5-digit zero-padded sequence).
func (n InvoiceNumber) Format() string {
	return fmt.Sprintf("%04d-%05d", n.Year, n.Sequence)
}

// NextInvoiceNumber returns the successor of last. When last is nil or from
// a different year than now, the sequence restarts at 1.
func NextInvoiceNumber(last *InvoiceNumber, now time.Time) InvoiceNumber {
	year := now.Year()
	if last == nil || last.Year != year {
		return InvoiceNumber{Year: year, Sequence: 1}
	}
	return InvoiceNumber{Year: last.Year, Sequence: last.Sequence + 1}
}

// ValidateInvoiceSequence checks a set of issued numbers for gaps and
// duplicates. Each year's sequence must be exactly 1..N independently.
// Returns nil when the set is intact; otherwise the first violation found
// (lowest year, lowest sequence).
func ValidateInvoiceSequence(invoices []InvoiceNumber) error {
	byYear := make(map[int][]int)
	for _, inv := range invoices {
		byYear[inv.Year] = append(byYear[inv.Year], inv.Sequence)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		seqs := byYear[year]
		sort.Ints(seqs)
		expected := 1
		for _, seq := range seqs {
			if seq == expected {
				expected++
				continue
			}
			number := InvoiceNumber{Year: year, Sequence: seq}.Format()
			if seq < expected {
				// After sorting, a sequence below the expectation can only be
				// a repeat of one already counted.
				return &SequenceError{Year: year, Expected: seq, Got: seq, Number: number, Kind: "duplicate"}
			}
			return &SequenceError{Year: year, Expected: expected, Got: seq, Number: number, Kind: "gap"}
		}
	}
	return nil
}
