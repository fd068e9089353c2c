package services

import (
	"context"
	"time"

	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// BatchGenerator splits large AI requests into sub-batches that run
// concurrently with a staggered start. A failed or short sub-batch is
// replaced from the bank and the static fallback.
type BatchGenerator struct {
	svc       *QuestionSourcingService
	batchSize int
	stagger   time.Duration
}

func newBatchGenerator(svc *QuestionSourcingService, batchSize int, stagger time.Duration) *BatchGenerator {
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	if stagger < 0 {
		stagger = config.BatchStagger
	}
	return &BatchGenerator{svc: svc, batchSize: batchSize, stagger: stagger}
}

// BatchSize is the largest count sent in one AI request
func (g *BatchGenerator) BatchSize() int {
	return g.batchSize
}

type batchResult struct {
	size      int
	questions []*models.Question
	err       error
}

// splitBatches returns the sub-batch sizes for total: full batches first,
// the remainder last.
func splitBatches(total, size int) []int {
	if total <= 0 {
		return nil
	}
	if size <= 0 {
		size = total
	}
	sizes := make([]int, 0, (total+size-1)/size)
	for remaining := total; remaining > 0; remaining -= size {
		sizes = append(sizes, min(size, remaining))
	}
	return sizes
}

// generateAIBatches runs one AI request per sub-batch. Sub-batch i starts
// after i staggers. Results keep submission order.
func (g *BatchGenerator) generateAIBatches(ctx context.Context, genReq models.GenerationRequest) []batchResult {
	sizes := splitBatches(genReq.Count, g.batchSize)
	results := make([]batchResult, len(sizes))

	var eg errgroup.Group
	for i, size := range sizes {
		results[i].size = size
		eg.Go(func() error {
			if err := sleepCtx(ctx, time.Duration(i)*g.stagger); err != nil {
				results[i].err = err
				return nil
			}
			sub := genReq
			sub.Count = size
			qs, err := g.svc.generateAI(ctx, sub)
			results[i].questions, results[i].err = qs, err
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// GenerateLarge returns exactly target questions for req, using AI
// sub-batches of batchSize (the configured size when batchSize <= 0).
// Sub-batches that fail are substituted from the non-AI tiers so one bad
// batch never sinks the whole request.
func (g *BatchGenerator) GenerateLarge(ctx context.Context, req models.SourcingRequest, target, batchSize int) []*models.Question {
	start := g.svc.now()
	req.Count = target
	req = g.svc.sanitize(ctx, req)
	target = req.Count

	ctx, span := observability.TraceSourcingFunction(ctx, "generate_large",
		observability.AttributeExam(req.Exam),
		observability.AttributeSubject(req.SubjectID),
		observability.AttributeCount(target),
	)
	defer span.End()

	if target <= 0 {
		return []*models.Question{}
	}
	if batchSize <= 0 {
		batchSize = g.batchSize
	}

	subject := g.svc.resolver.NormalizeSubject(req.SubjectID)
	out := newCollector(target)
	substituted := 0

	if g.svc.AIAvailable() {
		gen := &BatchGenerator{svc: g.svc, batchSize: batchSize, stagger: g.stagger}
		for i, b := range gen.generateAIBatches(ctx, g.svc.generationRequest(req, subject, target)) {
			before := len(out.questions)
			out.add(b.questions)
			if got := len(out.questions) - before; got < b.size {
				substituted++
				g.svc.metrics.BatchFallback()
				fields := map[string]interface{}{
					"batch":    i,
					"size":     b.size,
					"received": got,
				}
				if b.err != nil {
					fields["error"] = b.err.Error()
				}
				g.svc.logger.Warn(ctx, "Sub-batch short, substituting from bank and static fallback", fields)
				out.add(g.svc.nonAITiers(ctx, req, b.size-got))
			}
		}
	}

	if out.short() > 0 {
		out.add(g.svc.nonAITiers(ctx, req, out.short()))
	}
	if out.short() > 0 {
		// Fresh static copies carry round suffixes, so asking past the pool
		// size always yields unseen ids.
		out.add(g.svc.staticTier(req, subject, out.short()+g.svc.fallback.Len()))
	}

	questions := out.result()
	bySource := models.CountBySource(questions)
	span.SetAttributes(
		attribute.Int("batches.substituted", substituted),
		attribute.Int("served.ai", bySource[models.SourceAIGenerated]),
	)
	g.svc.record(models.EventKindBatch, req, bySource, start)
	g.svc.logger.Info(ctx, "Large request sourced", map[string]interface{}{
		"request":     req.String(),
		"batch_size":  batchSize,
		"substituted": substituted,
		"ai":          bySource[models.SourceAIGenerated],
		"bank":        bySource[models.SourceLocalBank],
		"static":      bySource[models.SourceStaticFallback],
	})
	return questions
}
