package screen

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/finscope/finscope/internal/indicators"
	"github.com/finscope/finscope/internal/providers"
)

const errorSampleLimit = 3
const errorSampleChars = 100

// fetchIndicators loads the indicator set for one symbol.
type fetchIndicators func(ctx context.Context, code string) (indicators.Result, error)

type enrichOutcome struct {
	status string // success, error, rate_limited, timeout
	sample string
}

// enrich computes indicators for every code under the configured
// concurrency bound and global timeout. Results preserve input order;
// entries are nil where enrichment failed. Partial results are the normal
// outcome of a timeout, never an error.
func (s *Service) enrich(ctx context.Context, codes []string, fetch fetchIndicators) ([]*indicators.Result, EnrichmentMeta, []string) {
	meta := EnrichmentMeta{Attempted: len(codes), ErrorSamples: []string{}}
	results := make([]*indicators.Result, len(codes))
	if len(codes) == 0 {
		return results, meta, nil
	}

	ectx, cancel := context.WithTimeout(ctx, s.opts.EnrichTimeout)
	defer cancel()

	outcomes := make([]enrichOutcome, len(codes))

	g := &errgroup.Group{}
	g.SetLimit(s.opts.EnrichConcurrency)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			if ectx.Err() != nil {
				outcomes[i] = enrichOutcome{status: "timeout"}
				return nil
			}
			res, err := fetch(ectx, code)
			if err != nil {
				outcomes[i] = classify(code, err)
				return nil
			}
			results[i] = &res
			outcomes[i] = enrichOutcome{status: "success"}
			return nil
		})
	}
	g.Wait()

	for _, o := range outcomes {
		switch o.status {
		case "success":
			meta.Succeeded++
		case "rate_limited":
			meta.RateLimited++
		case "timeout":
			meta.Timeout++
		default:
			meta.Failed++
		}
		if o.sample != "" && len(meta.ErrorSamples) < errorSampleLimit && !contains(meta.ErrorSamples, o.sample) {
			meta.ErrorSamples = append(meta.ErrorSamples, o.sample)
		}
	}

	var warnings []string
	if ectx.Err() != nil && ctx.Err() == nil {
		warnings = append(warnings, fmt.Sprintf(
			"RSI enrichment timed out after %s; returning partial results (%d/%d enriched)",
			s.opts.EnrichTimeout, meta.Succeeded, meta.Attempted))
	}
	return results, meta, warnings
}

func classify(code string, err error) enrichOutcome {
	o := enrichOutcome{status: "error"}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return enrichOutcome{status: "timeout"}
	}
	switch providers.KindOf(err) {
	case providers.KindRateLimited:
		o.status = "rate_limited"
	case providers.KindTimeout:
		o.status = "timeout"
	}
	sample := fmt.Sprintf("%s: %v", code, err)
	if len(sample) > errorSampleChars {
		// Back off to a rune boundary; provider messages carry Korean text.
		cut := errorSampleChars
		for cut > 0 && !utf8.RuneStart(sample[cut]) {
			cut--
		}
		sample = sample[:cut]
	}
	o.sample = sample
	return o
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
