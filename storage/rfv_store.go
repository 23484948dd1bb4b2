package storage

import (
	"context"
	"fmt"
	"time"

	"clinicsync/crm"
	"clinicsync/rfv"

	"github.com/shopspring/decimal"
)

// ListPurchases returns every sale keyed by patient: prontuario first, then
// CPF, then the lower-cased patient name. Sales with none of them are left out.
func (s *SQLiteStore) ListPurchases(ctx context.Context) ([]rfv.Purchase, error) {
	const query = `
SELECT patient_key, COALESCE(patient_name, ''), sale_date, amount
FROM (
	SELECT
		COALESCE(NULLIF(TRIM(prontuario), ''), NULLIF(TRIM(patient_cpf), ''), NULLIF(LOWER(TRIM(patient_name)), '')) AS patient_key,
		patient_name, sale_date, amount, id
	FROM vendas
)
WHERE patient_key IS NOT NULL
ORDER BY id;`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []rfv.Purchase
	for rows.Next() {
		var (
			purchase  rfv.Purchase
			dateRaw   string
			amountRaw string
		)
		if err := rows.Scan(&purchase.PatientKey, &purchase.PatientName, &dateRaw, &amountRaw); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchase.Date, err = time.Parse(crm.DateLayout, dateRaw)
		if err != nil {
			return nil, fmt.Errorf("parse sale_date %q: %w", dateRaw, err)
		}
		purchase.Amount, err = decimal.NewFromString(amountRaw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amountRaw, err)
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return purchases, nil
}

// ReplaceScores swaps the stored scores for the given set in one transaction.
func (s *SQLiteStore) ReplaceScores(ctx context.Context, scores []rfv.Score) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rfv_scores;`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear rfv scores: %w", err)
	}

	const insertStmt = `
INSERT INTO rfv_scores (
	patient_key, patient_name, last_purchase, recency_days, frequency, monetary,
	r_score, f_score, v_score, segment, calculated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare rfv insert: %w", err)
	}
	defer stmt.Close()

	for _, score := range scores {
		if _, err := stmt.ExecContext(ctx,
			score.PatientKey,
			score.PatientName,
			score.LastPurchase.Format(crm.DateLayout),
			score.RecencyDays,
			score.Frequency,
			score.Monetary.StringFixed(2),
			score.R,
			score.F,
			score.V,
			score.Segment,
			score.CalculatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert rfv score %q: %w", score.PatientKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rfv scores: %w", err)
	}
	return nil
}

// ListScores returns the stored scores ordered by patient key.
func (s *SQLiteStore) ListScores(ctx context.Context) ([]rfv.Score, error) {
	const query = `
SELECT patient_key, patient_name, last_purchase, recency_days, frequency, monetary,
	r_score, f_score, v_score, segment, calculated_at
FROM rfv_scores
ORDER BY patient_key;`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rfv scores: %w", err)
	}
	defer rows.Close()

	var scores []rfv.Score
	for rows.Next() {
		var (
			score       rfv.Score
			lastRaw     string
			monetaryRaw string
			calcRaw     string
		)
		if err := rows.Scan(
			&score.PatientKey,
			&score.PatientName,
			&lastRaw,
			&score.RecencyDays,
			&score.Frequency,
			&monetaryRaw,
			&score.R,
			&score.F,
			&score.V,
			&score.Segment,
			&calcRaw,
		); err != nil {
			return nil, fmt.Errorf("scan rfv score: %w", err)
		}
		if score.LastPurchase, err = time.Parse(crm.DateLayout, lastRaw); err != nil {
			return nil, fmt.Errorf("parse last_purchase %q: %w", lastRaw, err)
		}
		if score.Monetary, err = decimal.NewFromString(monetaryRaw); err != nil {
			return nil, fmt.Errorf("parse monetary %q: %w", monetaryRaw, err)
		}
		if score.CalculatedAt, err = time.Parse(time.RFC3339, calcRaw); err != nil {
			return nil, fmt.Errorf("parse calculated_at %q: %w", calcRaw, err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rfv scores: %w", err)
	}
	return scores, nil
}
