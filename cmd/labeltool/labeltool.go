package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/dataset"
	"github.com/cyclopcam/trainkit/dataset/labels"
	"github.com/cyclopcam/trainkit/training/config"
)

func main() {
	parser := argparse.NewParser("labeltool", "Remap and audit YOLO label files")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file, for class_mapping and class_names", Default: ""})
	datasetRoot := parser.String("", "dataset", &argparse.Options{Help: "Dataset root. Its labels/{train,val,test} folders are used when no --dir is given.", Default: ""})
	dirs := parser.StringList("d", "dir", &argparse.Options{Help: "Label folder (may be repeated)"})

	remapCmd := parser.NewCommand("remap", "Rewrite class IDs in label files")
	mapList := remapCmd.String("m", "map", &argparse.Options{Help: "Class mapping such as 1:3,2:4 (overrides the config file)", Default: ""})
	dryRun := remapCmd.Flag("n", "dry-run", &argparse.Options{Help: "Report what would change, without writing", Default: false})

	auditCmd := parser.NewCommand("audit", "Count class IDs in label files, and report anything unexpected")
	iou := auditCmd.Float("", "iou", &argparse.Options{Help: "Report same-class boxes that overlap by at least this IoU. 0 disables.", Default: labels.DefaultDuplicateIOU})
	asJSON := auditCmd.Flag("", "json", &argparse.Options{Help: "Print the audit as JSON", Default: false})
	strict := auditCmd.Flag("", "strict", &argparse.Options{Help: "Exit with an error if any anomalies are found", Default: false})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *datasetRoot != "" {
		cfg.DatasetRoot = *datasetRoot
	}
	folders := *dirs
	if len(folders) == 0 {
		if cfg.DatasetRoot == "" {
			fmt.Print(parser.Usage("Specify --dir, --dataset, or dataset_root in the config file"))
			os.Exit(1)
		}
		folders = dataset.Layout{Root: cfg.DatasetRoot}.LabelFolders()
	}

	exitCode := 0
	switch {
	case remapCmd.Happened():
		var mapping labels.Mapping
		if *mapList != "" {
			mapping, err = labels.ParseMappingList(*mapList)
		} else {
			mapping, err = cfg.Mapping()
		}
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		logger.Infof("Class mapping: %v", mapping)
		for _, dir := range folders {
			res, err := labels.Remap(logger, dir, mapping, *dryRun)
			if err != nil {
				logger.Warnf("%v", err)
				continue
			}
			if res.Failed != 0 {
				exitCode = 1
			}
		}
	case auditCmd.Happened():
		audit := labels.RunAudit(folders, cfg.Classes(), labels.AuditOptions{DuplicateIOU: float32(*iou)})
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "\t")
			if err := enc.Encode(audit); err != nil {
				logger.Errorf("%v", err)
				exitCode = 1
			}
		} else {
			audit.Print(os.Stdout)
		}
		if *strict && !audit.Clean() {
			exitCode = 1
		}
	}
	logger.Close()
	os.Exit(exitCode)
}
