// Package version describes the running application build and the cache
// generation name derived from it.
package version

import "fmt"

// App identifies one deployed build. Values are supplied by build metadata
// or configuration and never computed here.
type App struct {
	// Title is the human-readable application title (e.g., "SW Demo").
	Title string

	// Major is bumped for breaking changes.
	Major int

	// Minor is bumped for new features.
	Minor int

	// Revision is bumped for patches and bugfixes.
	Revision int
}

// New returns an App for the given title and version triple.
func New(title string, major, minor, revision int) App {
	return App{
		Title:    title,
		Major:    major,
		Minor:    minor,
		Revision: revision,
	}
}

// Version returns "major.minor.revision".
func (a App) Version() string {
	return fmt.Sprintf("%d.%d.%d", a.Major, a.Minor, a.Revision)
}

// Name returns the display name used in logs, e.g. "SW Demo V0.0.15".
func (a App) Name() string {
	return fmt.Sprintf("%s V%s", a.Title, a.Version())
}

// CacheName returns the name of the cache generation owned by this build,
// e.g. "SW Demo_cache_0.0.15".
func (a App) CacheName() string {
	return fmt.Sprintf("%s_cache_%s", a.Title, a.Version())
}

// UserAgent returns the User-Agent sent to the origin.
func (a App) UserAgent() string {
	return fmt.Sprintf("swcache-proxy (%s)", a.Name())
}
