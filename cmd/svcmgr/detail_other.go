//go:build !windows

package main

import "svcmgr/internal/service"

func statusDetail(service.Label) (string, error) {
	return "", nil
}
