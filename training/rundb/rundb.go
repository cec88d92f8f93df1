// Package rundb keeps a history of training runs in SQLite
package rundb

import (
	"fmt"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/training/report"
	"gorm.io/gorm"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Run is one invocation of the training pipeline
type Run struct {
	BaseModel
	StartedAt   dbh.IntTime                    `json:"startedAt"`
	FinishedAt  dbh.IntTime                    `json:"finishedAt" gorm:"default:null"`
	Status      Status                         `json:"status"`
	Model       string                         `json:"model"`       // Starting weights
	Epochs      int                            `json:"epochs"`      // Requested epochs
	DatasetRoot string                         `json:"datasetRoot"` // Dataset that was trained on
	SaveDir     string                         `json:"saveDir"`     // Trainer's output directory
	LogDir      string                         `json:"logDir"`      // Our report directory
	ExportPath  string                         `json:"exportPath"`  // Exported model
	Artifact    string                         `json:"artifact"`    // Name of the published model in artifact storage
	Summary     *dbh.JSONField[report.Summary] `json:"summary"`     // Best metrics, if results.csv was found
	Error       string                         `json:"error"`
}

// RunDB is the training run history
type RunDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create the run database
func Open(log logs.Log, dbPath string) (*RunDB, error) {
	log = logs.NewPrefixLogger(log, "RunDB")
	log.Infof("Opening run DB at '%v'", dbPath)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbPath), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open run database %v: %w", dbPath, err)
	}
	return &RunDB{
		Log: log,
		DB:  db,
	}, nil
}

func (r *RunDB) Close() {
	if sqlDB, err := r.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// Begin records the start of a run
func (r *RunDB) Begin(model string, epochs int, datasetRoot string) (*Run, error) {
	run := &Run{
		StartedAt:   dbh.MakeIntTime(time.Now()),
		Status:      StatusRunning,
		Model:       model,
		Epochs:      epochs,
		DatasetRoot: datasetRoot,
	}
	if err := r.DB.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Finish records the outcome of a run. A nil runErr means success.
func (r *RunDB) Finish(run *Run, summary *report.Summary, runErr error) error {
	run.FinishedAt = dbh.MakeIntTime(time.Now())
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = StatusSucceeded
	}
	if summary != nil {
		run.Summary = &dbh.JSONField[report.Summary]{Data: *summary}
	}
	return r.DB.Save(run).Error
}

// List returns the most recent runs, newest first
func (r *RunDB) List(limit int) ([]Run, error) {
	runs := []Run{}
	q := r.DB.Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Get returns a single run, or nil if it doesn't exist
func (r *RunDB) Get(id int64) (*Run, error) {
	run := Run{}
	res := r.DB.Where("id = ?", id).Limit(1).Find(&run)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &run, nil
}
