/*
zreport.go - Hash-chained end-of-day closing reports

PURPOSE:
  The Z-report is the daily closing document required for anti-fraud
  compliance. Each report carries a global, never-resetting sequence number
  and a digest chained to its predecessor: CurrentHash is computed over a
  canonical payload that includes PreviousHash, so altering or deleting any
  historical report invalidates every subsequent hash. Tampering is proven
  by recomputing the chain from the first report.

CANONICAL PAYLOAD:
  The hash is only meaningful if recomputation is byte-exact, so the hashed
  payload pins field order and number formatting:

    zr1|<sequence>|<YYYY-MM-DD>|<total sales, 2 decimals>|<previous hash>

  Changing the payload layout is a breaking change for every stored chain;
  the "zr1" prefix exists so a future layout can coexist.

SERIALIZATION OF GENERATION:
  Generating two reports concurrently from the same PreviousHash would fork
  the chain. Callers serialize generation per tenant; this package only
  computes.
*/
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DIGEST - Swappable cryptographic primitive
// =============================================================================

// Digest is the hash primitive behind the chain. Must be stable and
// deterministic; the concrete algorithm can be swapped without touching
// chain logic.
type Digest interface {
	Sum(b []byte) []byte
}

// SHA256Digest is the default digest.
type SHA256Digest struct{}

func (SHA256Digest) Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// =============================================================================
// REPORT BUILDING
// =============================================================================

// ZReportInput is everything a closing report is computed from.
type ZReportInput struct {
	TenantID    TenantID
	Date        time.Time
	Orders      []Order // the business day's orders; only completed ones count
	OpeningCash decimal.Decimal
	ClosingCash decimal.Decimal // counted in the drawer
	Previous    *ZReport        // nil for the very first report
}

// BuildZReport computes the closing report and seals it into the chain.
// The report must not be exposed to other readers until this returns: the
// hash is part of the document, not an afterthought.
func BuildZReport(in ZReportInput, digest Digest, clock Clock) (ZReport, error) {
	if digest == nil {
		digest = SHA256Digest{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if in.Date.IsZero() {
		return ZReport{}, fmt.Errorf("closing report: %w", ErrInvalidDate)
	}

	report := ZReport{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		Date:        in.Date,
		OpeningCash: in.OpeningCash,
		ClosingCash: in.ClosingCash,
		GeneratedAt: clock.Now(),
	}

	if in.Previous != nil {
		report.SequenceNumber = in.Previous.SequenceNumber + 1
		report.PreviousHash = in.Previous.CurrentHash
	} else {
		report.SequenceNumber = 1
	}

	vat := make(map[string]*VATLine)
	staff := make(map[string]*StaffLine)
	for _, o := range in.Orders {
		if o.Status != OrderCompleted {
			continue
		}
		switch o.PaymentMethod {
		case PayCard:
			report.CardTotal = report.CardTotal.Add(o.Total)
		default:
			report.CashTotal = report.CashTotal.Add(o.Total)
		}
		report.TotalSales = report.TotalSales.Add(o.Total)

		line := staff[o.ServedBy]
		if line == nil {
			line = &StaffLine{Staff: o.ServedBy}
			staff[o.ServedBy] = line
		}
		line.OrderCount++
		line.Total = line.Total.Add(o.Total)

		for _, it := range o.Items {
			if it.Refunded {
				continue
			}
			gross := it.LineTotal()
			key := it.VATRate.String()
			v := vat[key]
			if v == nil {
				v = &VATLine{Rate: it.VATRate}
				vat[key] = v
			}
			// Prices are VAT-inclusive; split gross into base + tax.
			base := gross.Div(decimal.NewFromInt(1).Add(it.VATRate))
			v.Base = v.Base.Add(base)
			v.Amount = v.Amount.Add(gross.Sub(base))
		}
	}

	report.TheoreticalCash = in.OpeningCash.Add(report.CashTotal)
	report.CashVariance = in.ClosingCash.Sub(report.TheoreticalCash)

	for _, v := range vat {
		report.VATBreakdown = append(report.VATBreakdown, *v)
	}
	sort.Slice(report.VATBreakdown, func(i, j int) bool {
		return report.VATBreakdown[i].Rate.LessThan(report.VATBreakdown[j].Rate)
	})
	for _, s := range staff {
		report.StaffBreakdown = append(report.StaffBreakdown, *s)
	}
	sort.Slice(report.StaffBreakdown, func(i, j int) bool {
		return report.StaffBreakdown[i].Staff < report.StaffBreakdown[j].Staff
	})

	report.CurrentHash = hashReport(report, digest)
	return report, nil
}

// canonicalPayload pins the byte-exact representation the hash covers.
func canonicalPayload(sequence int64, date time.Time, totalSales decimal.Decimal, previousHash string) []byte {
	return []byte(fmt.Sprintf("zr1|%d|%s|%s|%s",
		sequence,
		date.Format("2006-01-02"),
		totalSales.StringFixed(2),
		previousHash,
	))
}

func hashReport(r ZReport, digest Digest) string {
	sum := digest.Sum(canonicalPayload(r.SequenceNumber, r.Date, r.TotalSales, r.PreviousHash))
	return hex.EncodeToString(sum)
}

// =============================================================================
// CHAIN VERIFICATION
// =============================================================================

// VerifyChain recomputes the chain over reports (ordered by sequence) and
// returns the first broken link: a non-contiguous sequence, a PreviousHash
// that doesn't match the predecessor's CurrentHash, or a CurrentHash that
// doesn't match the recomputed digest.
func VerifyChain(reports []ZReport, digest Digest) error {
	if digest == nil {
		digest = SHA256Digest{}
	}
	for i, r := range reports {
		if i == 0 {
			if r.PreviousHash != "" {
				return &ChainError{SequenceNumber: r.SequenceNumber, Field: "previous_hash"}
			}
		} else {
			prev := reports[i-1]
			if r.SequenceNumber != prev.SequenceNumber+1 {
				return &ChainError{SequenceNumber: r.SequenceNumber, Field: "sequence"}
			}
			if r.PreviousHash != prev.CurrentHash {
				return &ChainError{SequenceNumber: r.SequenceNumber, Field: "previous_hash"}
			}
		}
		if r.CurrentHash != hashReport(r, digest) {
			return &ChainError{SequenceNumber: r.SequenceNumber, Field: "current_hash"}
		}
	}
	return nil
}
