package cmd

import (
	"fmt"
	"os"

	"github.com/mortehu/cantera-cas/pkg/casclient"
)

func newClient() *casclient.Client {
	addr := params.server
	return casclient.New(addr)
}

func listMode() casclient.ListMode {
	if params.listMode == "garbage" {
		return casclient.ListGarbage
	}
	return casclient.ListDefault
}

func maxSize() uint64 {
	if params.maxSize == 0 {
		return 1<<64 - 1
	}
	return params.maxSize
}

func fatal(format string, args ...interface{}) {
	warn(format, args...)
	os.Exit(1)
}

func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
