package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/go-git/go-refdb/plumbing"
	"github.com/go-git/go-refdb/refspec"
	"github.com/go-git/go-refdb/storage/refdir"
)

// lsRefsRun lists the references of a repository directory, one per
// line in "<hash> <name>" form. Optional refspec arguments filter the
// output by their source side, e.g. "refs/heads/*:refs/heads/*".
func lsRefsRun(args []string) error {
	f := flag.NewFlagSet("", flag.ExitOnError)
	prefix := f.String("prefix", "", "list only references under this prefix")
	if err := f.Parse(args); err != nil {
		return err
	}

	if f.NArg() == 0 {
		showLsRefsUsage()
		os.Exit(cannotStartExitCode)
	}

	gitDir, err := filepath.Abs(f.Arg(0))
	if err != nil {
		return err
	}

	var specs []refspec.RefSpec
	for _, arg := range f.Args()[1:] {
		s := refspec.RefSpec(arg)
		if !s.IsValid() {
			return fmt.Errorf("invalid refspec %q", arg)
		}
		specs = append(specs, s)
	}

	db := refdir.New(osfs.New(gitDir))
	refs, err := db.Refs(*prefix)
	if err != nil {
		return err
	}

	names := make([]plumbing.ReferenceName, 0, len(refs))
	for name := range refs {
		if len(specs) > 0 && !refspec.MatchAny(specs, name) {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, name := range names {
		fmt.Printf("%s %s\n", refs[name].Hash(), name)
	}

	return nil
}

func showLsRefsUsage() {
	fmt.Printf("usage: %s ls-refs <git-dir> [refspec...]\n", os.Args[0])
}
