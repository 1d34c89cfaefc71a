package main

import (
	"fmt"
	"runtime/debug"
)

// version run as: go-refdb version
func versionRun(_ []string) error {
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Printf("%s (%s)\n", info.Main.Version, info.GoVersion)
		return nil
	}

	fmt.Println("(unknown)")
	return nil
}
