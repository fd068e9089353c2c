package services

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"osscprep/internal/models"
	contextutils "osscprep/internal/utils"
)

// FallbackCategory is one coarse subject group of the static bank
type FallbackCategory string

const (
	CategoryReasoning        FallbackCategory = "reasoning"
	CategoryQuantitative     FallbackCategory = "quantitative"
	CategoryEnglish          FallbackCategory = "english"
	CategoryGeneralKnowledge FallbackCategory = "general-knowledge"
	CategoryComputer         FallbackCategory = "computer"
	CategoryMixed            FallbackCategory = "mixed"
)

// FallbackCategories lists the real categories in keyword-match order
var FallbackCategories = []FallbackCategory{
	CategoryReasoning,
	CategoryQuantitative,
	CategoryEnglish,
	CategoryGeneralKnowledge,
	CategoryComputer,
}

var categoryKeywords = map[FallbackCategory][]string{
	CategoryReasoning:        {"reasoning", "mental ability"},
	CategoryQuantitative:     {"quant", "math", "arithmetic"},
	CategoryEnglish:          {"english"},
	CategoryGeneralKnowledge: {"gk", "general knowledge", "odisha", "current affairs"},
	CategoryComputer:         {"computer"},
}

var categorySubjects = map[FallbackCategory]string{
	CategoryReasoning:        "Reasoning & Mental Ability",
	CategoryQuantitative:     "Quantitative Aptitude",
	CategoryEnglish:          "English Language",
	CategoryGeneralKnowledge: "General Knowledge",
	CategoryComputer:         "Computer Knowledge",
}

// Category maps a free-text subject onto a static bank category with a
// best-effort keyword check. Unknown subjects get CategoryMixed.
func Category(subject string) FallbackCategory {
	s := strings.ToLower(subject)
	for _, c := range FallbackCategories {
		for _, kw := range categoryKeywords[c] {
			if strings.Contains(s, kw) {
				return c
			}
		}
	}
	return CategoryMixed
}

// StaticFallbackBank is the last sourcing tier: a small hardcoded question
// set that needs no I/O.
type StaticFallbackBank struct {
	byCategory map[FallbackCategory][]*models.Question
	all        []*models.Question

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStaticFallbackBank builds a bank from per-category question lists.
// Subjects are filled from the category when missing.
func NewStaticFallbackBank(byCategory map[FallbackCategory][]*models.Question, rng *rand.Rand) *StaticFallbackBank {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	b := &StaticFallbackBank{byCategory: make(map[FallbackCategory][]*models.Question), rng: rng}
	for _, c := range FallbackCategories {
		for _, q := range byCategory[c] {
			q := q.Clone()
			if q.Subject == "" {
				q.Subject = categorySubjects[c]
			}
			q.Source = models.SourceStaticFallback
			b.byCategory[c] = append(b.byCategory[c], q)
			b.all = append(b.all, q)
		}
	}
	return b
}

// DefaultStaticFallbackBank returns the built-in 60 question bank
func DefaultStaticFallbackBank() *StaticFallbackBank {
	return NewStaticFallbackBank(defaultFallbackQuestions(), nil)
}

// Len returns the number of questions in the bank
func (b *StaticFallbackBank) Len() int {
	return len(b.all)
}

// CategoryLen returns how many questions a category holds
func (b *StaticFallbackBank) CategoryLen(c FallbackCategory) int {
	if c == CategoryMixed {
		return len(b.all)
	}
	return len(b.byCategory[c])
}

// Validate checks the bank once at startup. An empty category, a duplicate
// id or a malformed question fails with ErrFallbackBankInvalid.
func (b *StaticFallbackBank) Validate() error {
	if len(b.all) == 0 {
		return contextutils.WrapError(contextutils.ErrFallbackBankInvalid, "static fallback bank is empty")
	}
	seen := make(map[string]bool, len(b.all))
	for _, c := range FallbackCategories {
		if len(b.byCategory[c]) == 0 {
			return contextutils.WrapErrorf(contextutils.ErrFallbackBankInvalid, "category %s has no questions", c)
		}
		for _, q := range b.byCategory[c] {
			if err := q.Validate(); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrFallbackBankInvalid, "category %s: %v", c, err)
			}
			if seen[q.ID] {
				return contextutils.WrapErrorf(contextutils.ErrFallbackBankInvalid, "duplicate question id %s", q.ID)
			}
			seen[q.ID] = true
		}
	}
	return nil
}

// Select returns exactly n questions for subject. The category pool is
// shuffled; when n exceeds it the shuffled pool repeats, and repeated
// copies get an id suffix so ids stay unique within the result.
func (b *StaticFallbackBank) Select(subject string, n int, rng *rand.Rand) []*models.Question {
	if n <= 0 {
		return nil
	}
	pool := b.all
	if c := Category(subject); c != CategoryMixed && len(b.byCategory[c]) > 0 {
		pool = b.byCategory[c]
	}
	if len(pool) == 0 {
		return nil
	}

	perm := b.permutation(len(pool), rng)
	out := make([]*models.Question, 0, n)
	for i := 0; i < n; i++ {
		q := pool[perm[i%len(pool)]].Clone()
		if round := i / len(pool); round > 0 {
			q.ID = fmt.Sprintf("%s_r%d", q.ID, round+1)
		}
		out = append(out, q)
	}
	return out
}

func (b *StaticFallbackBank) permutation(n int, rng *rand.Rand) []int {
	if rng != nil {
		return rng.Perm(n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Perm(n)
}
