//go:build windows

package main

import (
	"fmt"

	"github.com/yusufpapurcu/wmi"

	"svcmgr/internal/service"
)

// win32Service is the subset of the Win32_Service WMI class the status verb
// reports.
type win32Service struct {
	Name      string
	State     string
	StartMode string
	StartName string
	PathName  string
}

// statusDetail queries WMI for the service's registration details. The
// service name in the SCM database is the fully qualified label.
func statusDetail(label service.Label) (string, error) {
	var services []win32Service
	query := wmi.CreateQuery(&services, fmt.Sprintf("WHERE Name = '%s'", label.Qualified()))
	if err := wmi.Query(query, &services); err != nil {
		return "", fmt.Errorf("query win32_service: %w", err)
	}
	if len(services) == 0 {
		return "", nil
	}

	s := services[0]
	return fmt.Sprintf("state=%s startmode=%s account=%s path=%s",
		s.State, s.StartMode, s.StartName, s.PathName), nil
}
