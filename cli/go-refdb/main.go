package main

import (
	"fmt"
	"os"
)

const (
	lsRefsName  = "ls-refs"
	versionName = "version"

	usage = `Please specify one command of: ls-refs or version
Usage:
	go-refdb <ls-refs | version>

Help Options:
	-h, --help  Show this help message

Available commands:
	ls-refs   List the references of a repository directory.
	version   Show the version information.
`

	cannotStartExitCode  = 129
	generalErrorExitCode = -1
)

var commands = map[string]func([]string) error{
	lsRefsName:  lsRefsRun,
	versionName: versionRun,
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(cannotStartExitCode)
	}

	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		showUsage()
		os.Exit(cannotStartExitCode)
	}

	if err := cmd(args); err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		os.Exit(generalErrorExitCode)
	}
}

func showUsage() {
	fmt.Print(usage)
}
