//go:build !unix

package main

import (
	"errors"

	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
)

func hostRuntime(string, *glog.Logger) (libc.Runtime, error) {
	return nil, errors.New("the host runtime needs a unix system; use --runtime memory")
}
