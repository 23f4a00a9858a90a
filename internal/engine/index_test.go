package engine

import (
	"testing"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
)

func windowIDs(index *candidateIndex, center *models.Transaction, maxDays int) []string {
	var out []string
	for _, tx := range index.window(center.Date, maxDays) {
		out = append(out, tx.ID)
	}
	return out
}

func TestCandidateIndexWindow(t *testing.T) {
	index := newCandidateIndex([]*models.Transaction{
		tx("a1", day.AddDate(0, 0, -4), "10.00", "A"),
		tx("a2", day.AddDate(0, 0, -1), "10.00", "B"),
		tx("a3", day, "10.00", "C"),
		tx("a4", day.AddDate(0, 0, 3), "10.00", "D"),
		tx("a5", day.AddDate(0, 0, 10), "10.00", "E"),
	})
	center := tx("b1", day, "10.00", "X")

	got := windowIDs(index, center, 3)
	want := []string{"a2", "a3", "a4"}
	if len(got) != len(want) {
		t.Fatalf("window(3) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window(3) = %v, want %v", got, want)
		}
	}

	if got := windowIDs(index, center, 0); len(got) != 1 || got[0] != "a3" {
		t.Errorf("window(0) = %v, want [a3]", got)
	}
}

func TestCandidateIndexSkipsBalanceLines(t *testing.T) {
	index := newCandidateIndex([]*models.Transaction{
		tx("a1", day, "10.00", "VIREMENT"),
		tx("a2", day, "1250.00", "SOLDE AU 15/03"),
	})

	if index.size != 1 {
		t.Fatalf("size = %d, want 1", index.size)
	}
	center := tx("b1", day, "10.00", "X")
	if got := windowIDs(index, center, 1); len(got) != 1 || got[0] != "a1" {
		t.Errorf("window = %v, want [a1]", got)
	}
}
