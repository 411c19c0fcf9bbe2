package db

import (
	"context"

	apperrors "learning-platform/errors"
	"learning-platform/models"
)

const paymentColumns = `
	SELECT payment_id, order_id, status, subscription_type, duration_months,
	       price_amount, price_currency, pay_amount, pay_currency, student_id,
	       created_at, updated_at
	FROM payments`

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var (
		p      models.PaymentRecord
		status string
	)
	if err := row.Scan(&p.PaymentID, &p.OrderID, &status, &p.SubscriptionType, &p.DurationMonths,
		&p.PriceAmount, &p.PriceCurrency, &p.PayAmount, &p.PayCurrency, &p.StudentID,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

func (r *repository) InsertPayment(ctx context.Context, p *models.PaymentRecord) (bool, error) {
	res, err := r.tx.ExecContext(ctx, `
		INSERT INTO payments (payment_id, order_id, status, subscription_type, duration_months,
		                      price_amount, price_currency, pay_amount, pay_currency, student_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (payment_id) DO NOTHING`,
		p.PaymentID, p.OrderID, string(p.Status), p.SubscriptionType, p.DurationMonths,
		p.PriceAmount, p.PriceCurrency, p.PayAmount, p.PayCurrency, p.StudentID)
	if err != nil {
		return false, apperrors.E(apperrors.Internal, "insert payment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.E(apperrors.Internal, "insert payment", err)
	}
	return n == 1, nil
}

func (r *repository) GetPaymentForUpdate(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	p, err := scanPayment(r.tx.QueryRowContext(ctx, paymentColumns+` WHERE payment_id = $1 FOR UPDATE`, paymentID))
	if err != nil {
		return nil, notFound("payment", err)
	}
	return p, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, p *models.PaymentRecord) error {
	err := r.tx.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $2, pay_amount = $3, pay_currency = $4, updated_at = NOW()
		WHERE payment_id = $1
		RETURNING updated_at`,
		p.PaymentID, string(p.Status), p.PayAmount, p.PayCurrency,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return notFound("payment", err)
	}
	return nil
}

func (r *repository) ListPaymentsByStudent(ctx context.Context, studentID int64) ([]models.PaymentRecord, error) {
	rows, err := r.tx.QueryContext(ctx, paymentColumns+`
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC`, studentID)
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "query payments", err)
	}
	defer rows.Close()

	records := []models.PaymentRecord{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, apperrors.E(apperrors.Internal, "scan payment", err)
		}
		records = append(records, *p)
	}
	return records, rows.Err()
}
