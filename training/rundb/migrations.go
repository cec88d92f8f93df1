package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			started_at INT NOT NULL,
			finished_at INT,
			status TEXT NOT NULL,
			model TEXT NOT NULL,
			epochs INT NOT NULL,
			dataset_root TEXT NOT NULL,
			save_dir TEXT,
			log_dir TEXT,
			export_path TEXT,
			artifact TEXT,
			summary TEXT,
			error TEXT
		);

		CREATE INDEX idx_run_started_at ON run(started_at);
	`))

	return migs
}
