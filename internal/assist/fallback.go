package assist

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Transaction categories recognized by the categorizer. AUTRE is the
// catch-all.
const (
	CategoryBankFees         = "FRAIS_BANCAIRE"
	CategoryIncomingTransfer = "VIREMENT_RECU"
	CategoryOutgoingTransfer = "VIREMENT_EMIS"
	CategoryCheque           = "CHEQUE"
	CategoryChequeDeposit    = "REMISE_CHEQUE"
	CategoryDirectDebit      = "PRELEVEMENT"
	CategoryCardPayment      = "CARTE_BANCAIRE"
	CategoryOther            = "AUTRE"
)

var (
	longDigitRuns = regexp.MustCompile(`\d{6,}`)
	multiSpace    = regexp.MustCompile(`\s+`)
)

// Filler tokens that carry no identity on Tunisian statement labels.
var labelStopWords = []string{"REGLEMENT", "PAIEMENT", "TN", "BQ"}

// NormalizeLabel uppercases a statement label and strips reference numbers
// and filler words, leaving the tokens that actually identify the
// counterparty and operation.
func NormalizeLabel(s string) string {
	s = strings.ToUpper(s)
	s = longDigitRuns.ReplaceAllString(s, "")
	for _, w := range labelStopWords {
		s = strings.ReplaceAll(s, w, "")
	}
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// TokenSortRatio is the deterministic label-similarity metric: both labels
// are normalized, tokenized, sorted, and rejoined, then scored by
// Levenshtein similarity. Word order differences ("VIREMENT SALAIRE" vs
// "SALAIRE VIREMENT") score 1.0.
func TokenSortRatio(a, b string) float64 {
	na := tokenSort(NormalizeLabel(a))
	nb := tokenSort(NormalizeLabel(b))

	// Empty labels carry no identity. Two descriptions that are blank, or
	// that normalize down to nothing (pure reference-number runs), say
	// nothing about whether the transactions are related, so they never
	// count as similar.
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	distance := levenshtein.DistanceForStrings([]rune(na), []rune(nb), levenshtein.DefaultOptions)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	return 1.0 - float64(distance)/float64(longest)
}

func tokenSort(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// categoryKeywords maps each category to the statement keywords that imply
// it. Order matters: the first category with a hit wins, so the more
// specific operations come before the generic transfer bucket.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryChequeDeposit, []string{"REMISE CHEQUE", "REMISE CHQ"}},
	{CategoryCheque, []string{"CHEQUE", "CHQ"}},
	{CategoryBankFees, []string{"FRAIS", "COMMISSION", "AGIOS", "ENG/SIGNATURE"}},
	{CategoryDirectDebit, []string{"PRELEVEMENT", "PRLV", "RETRAIT"}},
	{CategoryCardPayment, []string{"CARTE BANCAIRE", "CB ", "TPE", "POS"}},
	{CategoryIncomingTransfer, []string{"VIREMENT RECU", "VERSEMENT"}},
	{CategoryOutgoingTransfer, []string{"VIREMENT", "TRANSFERT", "VIR"}},
}

// CategorizeByKeywords is the deterministic categorizer used when the
// external capability is unavailable.
func CategorizeByKeywords(description string) Categorization {
	desc := strings.ToUpper(description)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(desc, kw) {
				return Categorization{Category: entry.category, Confidence: 0.6, Fallback: true}
			}
		}
	}
	return Categorization{Category: CategoryOther, Confidence: 0.0, Fallback: true}
}

// FallbackComparer scores labels with TokenSortRatio. It is the comparer of
// last resort and also serves as a capability stand-in in tests.
type FallbackComparer struct{}

// CompareLabels implements LabelComparer.
func (FallbackComparer) CompareLabels(_ context.Context, a, b string) (LabelComparison, error) {
	return LabelComparison{Score: TokenSortRatio(a, b), Fallback: true}, nil
}

// FallbackCategorizer classifies descriptions with CategorizeByKeywords.
type FallbackCategorizer struct{}

// CategorizeTransaction implements TransactionCategorizer.
func (FallbackCategorizer) CategorizeTransaction(_ context.Context, description string) (Categorization, error) {
	return CategorizeByKeywords(description), nil
}
