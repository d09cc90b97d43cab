// Package prewarm populates a cache generation with a fixed asset manifest
// at install time.
//
// Example usage:
//
//	p := prewarm.New(fetchClient, originURL, prewarm.DefaultConfig())
//	err := p.PutAll(ctx, gen, []string{"/", "/index.html", "/style/style.css"})
//	if errors.Is(err, prewarm.ErrPrewarmFailed) {
//		// the generation must not be served
//	}
//
// The prewarmer:
//   - Fetches all assets in parallel, bounded by MaxConcurrency
//   - Treats network errors and non-2xx statuses as failures
//   - Reports every failed asset in manifest order
//   - Writes nothing unless every asset was fetched
package prewarm
