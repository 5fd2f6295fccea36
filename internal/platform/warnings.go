package platform

import (
	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

// logWarnings emits one warn-level entry per restart-policy approximation so
// a lossy translation is visible without failing the install.
func logWarnings(component string, label service.Label, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	log := logger.WithComponent(component)
	for _, w := range warnings {
		log.Warn().Str("service", label.String()).Msg(w)
	}
}
