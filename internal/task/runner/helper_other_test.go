//go:build !unix

package runner

import "os"

func killSelf() { os.Exit(137) }
