package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/dataset/sanitize"
	"github.com/cyclopcam/trainkit/pkg/prompt"
	"github.com/fatih/color"
)

func main() {
	parser := argparse.NewParser("dsclean", "Clean up image and label filenames in a dataset folder")
	dirs := parser.StringList("d", "dir", &argparse.Options{Help: "Folder to clean (may be repeated)", Required: true})
	exts := parser.String("e", "exts", &argparse.Options{Help: "Comma-separated extensions to consider", Default: "jpg,jpeg,png"})
	dryRun := parser.Flag("n", "dry-run", &argparse.Options{Help: "Print what would happen, without changing anything", Default: false})
	yes := parser.Flag("y", "yes", &argparse.Options{Help: "Don't ask for confirmation", Default: false})
	skipDelete := parser.Flag("", "skip-delete", &argparse.Options{Help: "Never delete files", Default: false})
	skipRename := parser.Flag("", "skip-rename", &argparse.Options{Help: "Never rename files", Default: false})
	minutes := parser.String("", "minutes", &argparse.Options{Help: "Delete files whose timestamp minute is in this comma-separated list (eg 20,40)", Default: ""})
	dedup := parser.Flag("", "dedup", &argparse.Options{Help: "Delete files whose content is identical to another file", Default: false})
	passes := parser.String("", "passes", &argparse.Options{Help: "Comma-separated passes to run, in order: " + strings.Join(sanitize.AllPasses(), ","), Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	opt := sanitize.Options{
		Exts:       sanitize.ParseExts(*exts),
		SkipDelete: *skipDelete,
		SkipRename: *skipRename,
		Dedup:      *dedup,
	}
	if opt.Minutes, err = sanitize.ParseMinutes(*minutes); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if opt.Passes, err = sanitize.ParsePasses(*passes); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	s := sanitize.New(logger, opt)
	stdin := bufio.NewReader(os.Stdin)

	exitCode := 0
	for _, dir := range *dirs {
		if !clean(logger, s, stdin, dir, *dryRun, *yes) {
			exitCode = 1
		}
	}
	logger.Close()
	os.Exit(exitCode)
}

// clean runs the sanitizer over one folder, and returns false on failure
func clean(logger logs.Log, s *sanitize.Sanitizer, stdin *bufio.Reader, dir string, dryRun, yes bool) bool {
	if dryRun || !yes {
		plan, err := s.Plan(dir)
		if err != nil {
			logger.Errorf("%v", err)
			return false
		}
		printSummary(plan)
		if dryRun {
			return true
		}
		if !plan.Destructive() {
			fmt.Printf("Nothing to do in %v\n", dir)
			return true
		}
		warning := fmt.Sprintf("WARNING: This will rename %v and delete %v files in %v", plan.Renamed, plan.Deleted, dir)
		if !prompt.Confirm(stdin, os.Stdout, warning, "Proceed?") {
			return false
		}
	}
	res, err := s.Run(dir)
	if err != nil {
		logger.Errorf("%v", err)
		return false
	}
	printSummary(res)
	return res.Failed == 0
}

func printSummary(r *sanitize.Result) {
	title := "Done"
	if r.DryRun {
		title = "Dry run"
	}
	fmt.Printf("%v: %v\n", color.New(color.Bold).Sprint(title), r.Dir)
	fmt.Printf("  renamed: %v\n", r.Renamed)
	fmt.Printf("  deleted: %v\n", r.Deleted)
	fmt.Printf("  skipped: %v\n", r.Skipped)
	if r.Failed != 0 {
		fmt.Printf("  %v\n", color.RedString("failed:  %v", r.Failed))
	}
}
