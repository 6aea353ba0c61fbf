package fetch

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/bulkfeed/internal/bulk/cache"
	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

// PreviewFunc resolves one image URL to a base64-encoded preview, per spec
// §4.6/§6. A failure surfaces as an empty string and is not persisted.
type PreviewFunc func(ctx context.Context, imageURL string) string

// NewPreviewFunc composes a Fetcher and Cache into the RequestKey-cached
// POST to the external image preview service described in spec §6,
// grounded on the original's get_image_preview_avif_base64
// (bulk/bulk_images.py), including its @cache_disk(ttl=52 weeks) default.
//
// limiter bounds the rate of outbound POSTs when one refresh cycle harvests
// many image URLs at once (SPEC_FULL §11).
func NewPreviewFunc(f *Fetcher, c *cache.Cache, serviceURL string, ttl time.Duration, limiter *rate.Limiter, logger arbor.ILogger) PreviewFunc {
	return func(ctx context.Context, imageURL string) string {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return ""
			}
		}

		key, err := requestkey.New(serviceURL, nil).WithJSONBody("POST", map[string]string{"url": imageURL})
		if err != nil {
			logger.Warn().Err(err).Str("image_url", imageURL).Msg("failed to build preview request key")
			return ""
		}

		v, err := c.GetOrCompute(key, cache.KindText, ttl, func() (any, error) {
			status, body, ferr := f.Fetch(ctx, key)
			if ferr != nil {
				logger.Debug().Err(ferr).Str("image_url", imageURL).Msg("preview fetch failed, not persisting")
				return nil, cache.ErrDoNotPersist
			}
			if status < 200 || status >= 300 {
				logger.Debug().Int("status", status).Str("image_url", imageURL).Msg("preview service returned non-200, not persisting")
				return nil, cache.ErrDoNotPersist
			}
			return string(body), nil
		})
		if err != nil {
			logger.Warn().Err(err).Str("image_url", imageURL).Msg("unexpected cache error resolving preview")
			return ""
		}
		s, _ := v.(string)
		return s
	}
}
