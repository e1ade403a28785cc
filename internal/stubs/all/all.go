// Package all links every guest stub package into the default registry.
// Blank-import it wherever stubs.Install runs against stubs.DefaultRegistry.
package all

import (
	_ "github.com/zboralski/rplibc/internal/stubs/libc"
)
