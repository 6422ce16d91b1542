// Package config owns the runtime configuration model: worker count,
// cache capacity, watch behavior, and log settings, loaded from an
// optional crane.hcl file with CLI flags layered on top.
package config
