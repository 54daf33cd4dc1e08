package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"voice-diary-go/internal/extractor"
	"voice-diary-go/internal/types"
)

// enrich runs the recommender and the keyword extractor concurrently. Each
// goroutine owns its result variable. Adapters degrade instead of failing, so
// the only error the join reports is a recovered panic, and the panicking side
// falls back without cancelling the other one.
func (o *Orchestrator) enrich(ctx context.Context, text string) (types.Recommendation, types.Keywords) {
	var (
		rec types.Recommendation
		kw  types.Keywords
		g   errgroup.Group
	)

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				rec = extractor.NeutralRecommendation()
				err = fmt.Errorf("%w: recommender: %v", ErrStagePanic, r)
			}
		}()
		cctx, cancel := o.withTimeout(ctx)
		defer cancel()
		rec = o.recommender.Recommend(cctx, text)
		return nil
	})
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				kw = types.EmptyKeywords()
				err = fmt.Errorf("%w: keyword extractor: %v", ErrStagePanic, r)
			}
		}()
		cctx, cancel := o.withTimeout(ctx)
		defer cancel()
		kw = o.keywords.Extract(cctx, text)
		return nil
	})
	if err := g.Wait(); err != nil {
		o.log.WithError(err).Error("enrichment adapter panicked, using fallback")
	}

	if rec.Emotion == "" {
		rec.Emotion = extractor.NeutralEmotion
	}
	if rec.Songs == nil {
		rec.Songs = []string{}
	}
	kw = types.Keywords{
		Who:   extractor.NormalizeKeywords(kw.Who),
		Where: extractor.NormalizeKeywords(kw.Where),
		What:  extractor.NormalizeKeywords(kw.What),
	}
	if len(rec.Songs) > extractor.MaxSongs {
		rec.Songs = rec.Songs[:extractor.MaxSongs]
	}
	return rec, kw
}
