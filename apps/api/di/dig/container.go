package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	glog "github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
	cachesvc "github.com/trezcool/mahudhurio/services/cache"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	"github.com/trezcool/mahudhurio/storage/database"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
	boiledrepos "github.com/trezcool/mahudhurio/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/mahudhurio/storage/database/sqlx"
)

// Closer releases a resource on shutdown.
type Closer func() error

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	ClosersParam struct {
		dig.In
		Closers []Closer `group:"closers"`
	}

	storageResult struct {
		dig.Out
		Users      user.Repository
		Attendance attendance.Repository
		Closer     Closer `group:"closers"`
	}

	cacheResult struct {
		dig.Out
		Cache  attendance.Cache
		Closer Closer `group:"closers"`
	}

	serverParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		UserSvc       *user.Service
		AttendanceSvc *attendance.Service
		Validate      *validator.Validate
		Translator    ut.Translator
	}
)

func noop() error { return nil }

func newConsoleLogger(prefix string, conf *core.Config) core.Logger {
	std := glog.New(prefix)
	std.SetOutput(os.Stdout)
	logger := logsvc.NewRollbarLogger(std, conf)
	if conf.Debug {
		logger.Enable(false)
	}
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newConsoleLogger("api", conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return newConsoleLogger("db", conf)
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, conf.Database.Engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newStorage wires the repositories of the configured engine.
func newStorage(conf *core.Config, loggerParam DBLoggerParam) (storageResult, error) {
	logger := loggerParam.Logger

	if conf.Database.Engine == database.EngineMemory {
		logger.Warn("using the memory engine: data is lost on shutdown")
		db := inmemdb.Open()
		return storageResult{
			Users:      inmemdb.NewUserRepository(db),
			Attendance: inmemdb.NewAttendanceRepository(db),
			Closer:     noop,
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return storageResult{}, errors.Wrap(err, "setting up database")
	}
	closer := func() error {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", err)
			return err
		}
		return nil
	}
	logger.Info(fmt.Sprintf("connected to %s database %q", conf.Database.Engine, conf.Database.Name))

	switch conf.Database.Engine {
	case database.EnginePostgres:
		return storageResult{
			Users:      boiledrepos.NewUserRepository(db),
			Attendance: boiledrepos.NewAttendanceRepository(db),
			Closer:     closer,
		}, nil
	default:
		xdb := sqlx.NewDb(db, database.DriverName(conf.Database.Engine))
		return storageResult{
			Users:      sqlxrepos.NewUserRepository(xdb),
			Attendance: sqlxrepos.NewAttendanceRepository(xdb),
			Closer:     closer,
		}, nil
	}
}

// newCache connects to Redis when an address is configured. Summaries are not cached otherwise.
func newCache(conf *core.Config, logger core.Logger) (cacheResult, error) {
	cache, closeFn, err := cachesvc.NewFromConfig(context.Background(), conf)
	if err != nil {
		return cacheResult{}, errors.Wrap(err, "setting up cache")
	}
	if cache != nil {
		logger.Info(fmt.Sprintf("caching summaries in redis at %s", conf.Redis.Addr))
	}
	return cacheResult{Cache: cache, Closer: closeFn}, nil
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

func newAttendanceService(
	repo attendance.Repository,
	usrSvc *user.Service,
	cache attendance.Cache,
	logger core.Logger,
) *attendance.Service {
	return attendance.NewService(repo, usrSvc, cache, logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		UserSvc:       p.UserSvc,
		AttendanceSvc: p.AttendanceSvc,
		Validate:      p.Validate,
		Translator:    p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newCache))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
