// Command admin runs maintenance tasks against the configured database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
	cachesvc "github.com/trezcool/mahudhurio/services/cache"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	"github.com/trezcool/mahudhurio/storage/database"
	boiledrepos "github.com/trezcool/mahudhurio/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/mahudhurio/storage/database/sqlx"
)

func main() {
	std := log.New("admin")
	std.SetOutput(os.Stdout)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(false)

	if conf.Database.Engine == database.EngineMemory {
		logger.Fatal("the admin commands need a persistent database engine (postgres or sqlite)")
	}

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	var usrRepo user.Repository
	var attRepo attendance.Repository
	if conf.Database.Engine == database.EnginePostgres {
		usrRepo = boiledrepos.NewUserRepository(db)
		attRepo = boiledrepos.NewAttendanceRepository(db)
	} else {
		xdb := sqlx.NewDb(db, database.DriverName(conf.Database.Engine))
		usrRepo = sqlxrepos.NewUserRepository(xdb)
		attRepo = sqlxrepos.NewAttendanceRepository(xdb)
	}
	usrSvc := user.NewService(usrRepo)

	// writes must drop the summaries the API cached
	cache, closeCache, err := cachesvc.NewFromConfig(context.Background(), conf)
	if err != nil {
		_ = db.Close()
		logger.Fatal(fmt.Sprintf("setting up cache: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:       db,
		engine:   conf.Database.Engine,
		validate: newValidator(),
		usrSvc:   usrSvc,
		attSvc:   attendance.NewService(attRepo, usrSvc, cache, logger),
	}
	err = cli.run(os.Args)
	_ = closeCache()
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
