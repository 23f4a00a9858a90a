package engine

import (
	"time"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
)

const dayKeyFormat = "2006-01-02"

// candidateIndex buckets one side's transactions by calendar day, so the
// tier scans pull a date window's candidates without walking the whole
// ledger for every bank transaction. Balance-statement lines never enter
// the index; they are not matchable.
type candidateIndex struct {
	days map[string][]*models.Transaction
	size int
}

func newCandidateIndex(set []*models.Transaction) *candidateIndex {
	index := &candidateIndex{days: make(map[string][]*models.Transaction)}
	for _, tx := range set {
		if tx.IsBalanceLine() {
			continue
		}
		key := tx.Date.Format(dayKeyFormat)
		index.days[key] = append(index.days[key], tx)
		index.size++
	}
	return index
}

// window returns the transactions dated within maxDays of center, in
// chronological bucket order. The caller filters claimed entries and
// applies its own candidate ordering.
func (ci *candidateIndex) window(center time.Time, maxDays int) []*models.Transaction {
	out := make([]*models.Transaction, 0, 8)
	for offset := -maxDays; offset <= maxDays; offset++ {
		key := center.AddDate(0, 0, offset).Format(dayKeyFormat)
		out = append(out, ci.days[key]...)
	}
	return out
}
