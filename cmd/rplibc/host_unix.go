//go:build unix

package main

import (
	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
	"github.com/zboralski/rplibc/internal/runtime/host"
)

func hostRuntime(root string, logger *glog.Logger) (libc.Runtime, error) {
	return host.New(root, logger), nil
}
