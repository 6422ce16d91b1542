// Package app is the composition root: it builds the logger, loads the
// runtime config, aggregates every plugin's rule set into the registry,
// opens the workspace services, and drives goal builds, either once or
// continuously in watch mode.
package app
