package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"learning-platform/models"
)

const paymentsSheet = "Payments"

var paymentColumns = []string{
	"Payment ID", "Order ID", "Status", "Subscription", "Months",
	"Price", "Currency", "Paid Amount", "Paid Currency", "Created", "Updated",
}

// PaymentHistoryWorkbook renders records as an XLSX workbook.
func PaymentHistoryWorkbook(records []models.PaymentRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", paymentsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(paymentColumns))
	for i, c := range paymentColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(paymentsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			r.PaymentID, r.OrderID, string(r.Status), r.SubscriptionType, r.DurationMonths,
			r.PriceAmount, r.PriceCurrency, r.PayAmount, r.PayCurrency,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), r.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(paymentsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadPaymentHistoryWorkbook parses a workbook produced by
// PaymentHistoryWorkbook back into rows of cell text, header included.
func ReadPaymentHistoryWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return f.GetRows(paymentsSheet)
}
