package rfv

import (
	"context"
	"fmt"
	"sort"
	"time"

	"clinicsync/internal/timeutil"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Segments assigned from the recency and frequency scores.
const (
	SegmentChampions      = "champions"
	SegmentLoyal          = "loyal"
	SegmentNew            = "new"
	SegmentAtRisk         = "at_risk"
	SegmentLost           = "lost"
	SegmentNeedsAttention = "needs_attention"
)

// Purchase is one stored sale reduced to what scoring needs.
type Purchase struct {
	PatientKey  string
	PatientName string
	Date        time.Time
	Amount      decimal.Decimal
}

// Score holds the recency, frequency and value figures of one patient. R, F
// and V are quintile scores from 1 to 5, 5 being best.
type Score struct {
	PatientKey   string          `json:"patientKey"`
	PatientName  string          `json:"patientName"`
	LastPurchase time.Time       `json:"lastPurchase"`
	RecencyDays  int             `json:"recencyDays"`
	Frequency    int             `json:"frequency"`
	Monetary     decimal.Decimal `json:"monetary"`
	R            int             `json:"r"`
	F            int             `json:"f"`
	V            int             `json:"v"`
	Segment      string          `json:"segment"`
	CalculatedAt time.Time       `json:"calculatedAt"`
}

type Source interface {
	ListPurchases(ctx context.Context) ([]Purchase, error)
	ReplaceScores(ctx context.Context, scores []Score) error
}

type Result struct {
	PurchasesRead int
	Patients      int
	BySegment     map[string]int
}

// Run recomputes every patient score from the stored purchases and replaces
// the stored scores.
func Run(ctx context.Context, source Source, now time.Time, log *logrus.Entry) (*Result, error) {
	if log == nil {
		log = logrusNop()
	}
	purchases, err := source.ListPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}

	scores := Compute(purchases, now)
	if err := source.ReplaceScores(ctx, scores); err != nil {
		return nil, fmt.Errorf("persist rfv scores: %w", err)
	}

	result := &Result{
		PurchasesRead: len(purchases),
		Patients:      len(scores),
		BySegment:     make(map[string]int),
	}
	for _, score := range scores {
		result.BySegment[score.Segment]++
	}
	log.WithFields(logrus.Fields{"purchases": result.PurchasesRead, "patients": result.Patients}).Info("rfv scores recalculated")
	return result, nil
}

// Compute groups purchases by patient and scores every patient against the
// others. The result is ordered by patient key.
func Compute(purchases []Purchase, now time.Time) []Score {
	byPatient := groupByPatient(purchases)
	keys := sortedKeys(byPatient)
	if len(keys) == 0 {
		return []Score{}
	}

	scores := make([]Score, 0, len(keys))
	for _, key := range keys {
		patientPurchases := byPatient[key]
		score := Score{PatientKey: key, Monetary: decimal.Zero, CalculatedAt: now}
		for _, purchase := range patientPurchases {
			if score.PatientName == "" {
				score.PatientName = purchase.PatientName
			}
			if purchase.Date.After(score.LastPurchase) {
				score.LastPurchase = purchase.Date
			}
			score.Monetary = score.Monetary.Add(purchase.Amount)
		}
		score.Frequency = len(patientPurchases)
		score.RecencyDays = max(0, timeutil.DaysBetween(score.LastPurchase, now))
		scores = append(scores, score)
	}

	recency := quintiles(scores, func(a, b Score) int { return b.RecencyDays - a.RecencyDays })
	frequency := quintiles(scores, func(a, b Score) int { return a.Frequency - b.Frequency })
	value := quintiles(scores, func(a, b Score) int { return a.Monetary.Cmp(b.Monetary) })
	for i := range scores {
		scores[i].R = recency[i]
		scores[i].F = frequency[i]
		scores[i].V = value[i]
		scores[i].Segment = segment(scores[i].R, scores[i].F)
	}
	return scores
}

func groupByPatient(purchases []Purchase) map[string][]Purchase {
	byPatient := make(map[string][]Purchase)
	for _, purchase := range purchases {
		if purchase.PatientKey == "" {
			continue
		}
		byPatient[purchase.PatientKey] = append(byPatient[purchase.PatientKey], purchase)
	}
	return byPatient
}

func sortedKeys(values map[string][]Purchase) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// quintiles ranks scores ascending by cmp (worst first) and maps each rank to
// 1..5. Equal values share the score of their first rank.
func quintiles(scores []Score, cmp func(a, b Score) int) []int {
	n := len(scores)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return cmp(scores[order[i]], scores[order[j]]) < 0
	})

	out := make([]int, n)
	rank := 0
	for pos, idx := range order {
		if pos > 0 && cmp(scores[order[pos-1]], scores[idx]) != 0 {
			rank = pos
		}
		out[idx] = 1 + rank*5/n
	}
	return out
}

func segment(r, f int) string {
	switch {
	case r >= 4 && f >= 4:
		return SegmentChampions
	case r >= 3 && f >= 3:
		return SegmentLoyal
	case r >= 4:
		return SegmentNew
	case r <= 2 && f >= 3:
		return SegmentAtRisk
	case r <= 2:
		return SegmentLost
	default:
		return SegmentNeedsAttention
	}
}

func logrusNop() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}
