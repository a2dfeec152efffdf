// Package config carries the runtime state shared by the apksigner
// commands: the diagnostic logger, interactivity policy, and the APK
// engine override used by tests.
package config

import (
	"github.com/sigforge/apksigner/internal/logging"
	"github.com/sigforge/apksigner/pkg/apk"
)

// Config holds the runtime configuration
type Config struct {
	Logger         *logging.Logger
	NonInteractive bool

	// Engine overrides the engine registered at link time. Left nil,
	// commands fall back to apk.Default().
	Engine apk.Engine
}

// ResolveEngine returns the engine commands sign and verify with: the
// injected override when present, otherwise the one registered into the
// process at link time.
func (c *Config) ResolveEngine() (apk.Engine, error) {
	if c.Engine != nil {
		return c.Engine, nil
	}
	return apk.Default()
}
