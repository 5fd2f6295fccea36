//go:build !windows

package platform

import (
	"fmt"

	"svcmgr/internal/service"
)

func newScm() (service.Manager, error) {
	return nil, fmt.Errorf("service control manager requires windows: %w", service.ErrUnsupported)
}
