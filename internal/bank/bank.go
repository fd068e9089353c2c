// Package bank serves questions from the static corpus, avoiding questions a
// learner has already seen.
package bank

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/topics"
)

// Filter selects questions from the bank. When Topic or BankTopics is set
// the topic mapping is searched; otherwise the corpus is filtered by
// Subject and Difficulty.
type Filter struct {
	Exam       string
	Subject    string
	Topic      string
	BankTopics []string
	Difficulty models.Difficulty
	ExcludeIDs []string
	Limit      int
}

// Option configures a Bank
type Option func(*Bank)

// WithRand sets the shuffle source. Tests use a seeded generator.
func WithRand(rng *rand.Rand) Option {
	return func(b *Bank) { b.rng = rng }
}

// Bank answers queries over a corpus and its topic mapping. It never
// modifies the corpus; returned questions are copies.
type Bank struct {
	corpus   *Corpus
	mapping  TopicMapping
	resolver *topics.Resolver
	logger   *observability.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a bank. A nil mapping is built from the corpus.
func New(corpus *Corpus, mapping TopicMapping, resolver *topics.Resolver, logger *observability.Logger, opts ...Option) *Bank {
	if mapping == nil {
		mapping = BuildTopicMapping(corpus)
	}
	b := &Bank{
		corpus:   corpus,
		mapping:  mapping,
		resolver: resolver,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		now := uint64(time.Now().UnixNano())
		b.rng = rand.New(rand.NewPCG(now, now>>1|1))
	}
	return b
}

// Query returns up to f.Limit unseen questions and marks them used. It
// returns fewer, possibly none, when the corpus cannot satisfy the filter.
// Usage store failures are logged and the query proceeds without them.
func (b *Bank) Query(ctx context.Context, f Filter, used UsageSet) []*models.Question {
	ctx, span := observability.TraceBankFunction(ctx, "Query",
		observability.AttributeSubject(f.Subject),
		observability.AttributeTopic(f.Topic),
		observability.AttributeDifficulty(string(f.Difficulty)),
		observability.AttributeCount(f.Limit),
	)
	defer span.End()

	if f.Limit <= 0 {
		return nil
	}

	var candidates []*models.Question
	if f.Topic != "" || len(f.BankTopics) > 0 {
		targets := f.BankTopics
		if targets == nil {
			targets = b.resolver.Resolve(f.Subject, f.Topic)
		}
		candidates = b.fromMatchingTopics(f.Subject, targets)
		if len(candidates) == 0 {
			b.logger.Debug(ctx, "No matching bank topics", map[string]interface{}{
				"subject": f.Subject, "topic": f.Topic, "targets": targets,
			})
		}
	}
	if candidates == nil {
		candidates = b.fromCorpusFilter(f)
	}

	candidates = b.withoutExcluded(ctx, candidates, f.ExcludeIDs, used)
	candidates = filterDifficulty(candidates, f.Difficulty)

	b.shuffle(candidates)
	if len(candidates) > f.Limit {
		candidates = candidates[:f.Limit]
	}

	out := make([]*models.Question, len(candidates))
	ids := make([]string, len(candidates))
	for i, q := range candidates {
		c := q.Clone()
		c.Source = models.SourceLocalBank
		c.Exam = f.Exam
		out[i] = c
		ids[i] = q.ID
	}
	if used != nil && len(ids) > 0 {
		if err := used.MarkUsed(ctx, ids...); err != nil {
			b.logger.Warn(ctx, "Failed to mark questions used", map[string]interface{}{"error": err.Error(), "count": len(ids)})
		}
	}

	b.logger.Debug(ctx, "Bank query served", map[string]interface{}{
		"subject": f.Subject, "topic": f.Topic, "requested": f.Limit, "returned": len(out),
	})
	return out
}

// fromMatchingTopics unions the question ids of every mapping topic whose
// label matches targets, within subjects matching subject. It returns nil
// when no topic matches.
func (b *Bank) fromMatchingTopics(subject string, targets []string) []*models.Question {
	if len(targets) == 0 {
		return nil
	}
	var out []*models.Question
	seen := make(map[string]bool)
	for _, mappingSubject := range b.mapping.Subjects() {
		if !b.resolver.SubjectMatches(mappingSubject, subject) {
			continue
		}
		for _, label := range b.mapping.Topics(mappingSubject) {
			if !topics.MatchesLabel(label, targets) {
				continue
			}
			for _, id := range b.mapping[mappingSubject][label].QuestionIDs {
				if seen[id] {
					continue
				}
				seen[id] = true
				if q, ok := b.corpus.Get(id); ok {
					out = append(out, q)
				}
			}
		}
	}
	return out
}

// fromCorpusFilter matches the normalized subject exactly and, when set,
// the topic label literally.
func (b *Bank) fromCorpusFilter(f Filter) []*models.Question {
	subject := b.resolver.NormalizeSubject(f.Subject)
	out := make([]*models.Question, 0)
	for _, q := range b.corpus.All() {
		if subject != "" && b.resolver.NormalizeSubject(q.Subject) != subject {
			continue
		}
		if f.Topic != "" && !strings.EqualFold(q.Topic, f.Topic) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func (b *Bank) withoutExcluded(ctx context.Context, candidates []*models.Question, exclude []string, used UsageSet) []*models.Question {
	if len(candidates) == 0 {
		return candidates
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	if used != nil {
		ids := make([]string, len(candidates))
		for i, q := range candidates {
			ids[i] = q.ID
		}
		seen, err := used.Seen(ctx, ids)
		if err != nil {
			b.logger.Warn(ctx, "Usage lookup failed, serving without repeat protection", map[string]interface{}{"error": err.Error()})
		}
		for id := range seen {
			skip[id] = true
		}
	}

	out := candidates[:0:0]
	for _, q := range candidates {
		if !skip[q.ID] {
			out = append(out, q)
		}
	}
	return out
}

// filterDifficulty keeps questions of difficulty d. When none match, the
// constraint is dropped rather than returning nothing.
func filterDifficulty(candidates []*models.Question, d models.Difficulty) []*models.Question {
	if d == "" {
		return candidates
	}
	filtered := make([]*models.Question, 0, len(candidates))
	for _, q := range candidates {
		if q.Difficulty == d {
			filtered = append(filtered, q)
		}
	}
	if len(filtered) == 0 {
		return candidates
	}
	return filtered
}

func (b *Bank) shuffle(qs []*models.Question) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

// Stats summarises the corpus. Used is the size of the learner's set.
func (b *Bank) Stats(ctx context.Context, used UsageSet) models.BankStats {
	stats := models.BankStats{
		Total:        b.corpus.Len(),
		BySubject:    make(map[string]int),
		ByTopic:      make(map[string]int),
		ByDifficulty: make(map[models.Difficulty]int, len(models.Difficulties)),
	}
	for _, d := range models.Difficulties {
		stats.ByDifficulty[d] = 0
	}
	for _, q := range b.corpus.All() {
		stats.BySubject[q.Subject]++
		stats.ByTopic[q.Subject+" > "+q.Topic]++
		stats.ByDifficulty[q.Difficulty]++
	}
	if used != nil {
		n, err := used.Size(ctx)
		if err != nil {
			b.logger.Warn(ctx, "Failed to read usage size", map[string]interface{}{"error": err.Error()})
		}
		stats.Used = n
	}
	stats.Available = max(stats.Total-stats.Used, 0)
	return stats
}

// TopicsForSubject lists a subject's bank topics, most questions first,
// with how many of each the learner has not yet seen.
func (b *Bank) TopicsForSubject(ctx context.Context, subject string, used UsageSet) []models.TopicAvailability {
	name := b.resolver.NormalizeSubject(subject)
	entries, ok := b.mapping[name]
	if !ok {
		return []models.TopicAvailability{}
	}

	out := make([]models.TopicAvailability, 0, len(entries))
	for topic, entry := range entries {
		available := entry.Count
		if used != nil {
			if seen, err := used.Seen(ctx, entry.QuestionIDs); err == nil {
				available -= len(seen)
			}
		}
		out = append(out, models.TopicAvailability{Topic: topic, Count: entry.Count, Available: available})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// TopicCount returns how many questions a subject's topic holds
func (b *Bank) TopicCount(subject, topic string) int {
	return b.mapping[b.resolver.NormalizeSubject(subject)][topic].Count
}

// Subjects lists the subjects present in the corpus
func (b *Bank) Subjects() []string {
	return b.mapping.Subjects()
}

// Size is the corpus size
func (b *Bank) Size() int {
	return b.corpus.Len()
}
