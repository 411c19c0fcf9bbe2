package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptPDF renders a one-page receipt for a subscription change.
func ReceiptPDF(ev SubscriptionEvent) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Subscription receipt", false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Subscription Receipt")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	rows := [][2]string{
		{"Student", ev.Username},
		{"Email", ev.Email},
		{"Duration", fmt.Sprintf("%d month(s)", ev.DurationMonths)},
		{"Valid from", formatReceiptTime(ev.SubscriptionStart)},
		{"Valid until", formatReceiptTime(ev.SubscriptionEnd)},
	}
	if ev.PaymentID != "" {
		rows = append(rows,
			[2]string{"Payment", ev.PaymentID},
			[2]string{"Amount", fmt.Sprintf("%s %s", ev.PriceAmount, ev.PriceCurrency)},
		)
	}
	for _, row := range rows {
		pdf.CellFormat(45, 8, row[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, row[1], "", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 10)
	pdf.Cell(40, 10, fmt.Sprintf("Issued %s", ev.Timestamp.UTC().Format("2006-01-02 15:04 MST")))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func formatReceiptTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
