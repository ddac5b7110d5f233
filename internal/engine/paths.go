package engine

import (
	"path/filepath"
	"time"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
)

// RunFolderLayout names timestamped run folders, e.g. "2026-03-09 14-05".
const RunFolderLayout = "2006-01-02 15-04"

// ResolvePaths fills in the data and output folders of a run. Without a
// city both folders must be given. With a city, missing folders default to
// Cities/<city>/Data and Cities/<city>/<workflow folder>/<start time>.
func ResolvePaths(wf constants.Workflow, city, dataDir, outputDir string, start time.Time) (string, string, error) {
	if city == "" && (dataDir == "" || outputDir == "") {
		return "", "", faults.New(faults.Configuration, "resolve paths",
			"a city name is required unless both the data and output folders are given")
	}
	if dataDir == "" {
		dataDir = filepath.Join("Cities", city, "Data")
	}
	if outputDir == "" {
		outputDir = filepath.Join("Cities", city, wf.OutputSubdir(), start.Format(RunFolderLayout))
	}
	return dataDir, outputDir, nil
}
