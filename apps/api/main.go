package main

import (
	"context"
	"log"
	"os"

	"github.com/athravseruwam07/clarus/apps/api/echo"
	"github.com/athravseruwam07/clarus/core"
	"github.com/athravseruwam07/clarus/core/course"
	"github.com/athravseruwam07/clarus/core/lms"
	"github.com/athravseruwam07/clarus/core/timeline"
	logsvc "github.com/athravseruwam07/clarus/services/logger"
	"github.com/athravseruwam07/clarus/storage/database"
	inmemdb "github.com/athravseruwam07/clarus/storage/database/inmem"
)

func main() {
	conf := core.Conf
	std := log.New(os.Stdout, conf.AppName+" : ", log.LstdFlags|log.Lshortfile)

	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}

	var (
		courseRepo   course.Repository
		timelineRepo timeline.Repository
	)
	if conf.Debug && conf.Database.Host == "" {
		// no DB around; keep everything in memory
		db, err := inmemdb.Open()
		errAndDie(std, err)
		courseRepo = inmemdb.NewCourseRepository(db)
		timelineRepo = inmemdb.NewTimelineRepository(db)
	} else {
		errAndDie(std, database.CreateIfNotExist(conf))
		db, err := database.Open(conf)
		errAndDie(std, err)
		defer func() { _ = db.Close() }()
		errAndDie(std, database.Migrate(db.DB))
		courseRepo = database.NewCourseRepository(db)
		timelineRepo = database.NewTimelineRepository(db)
	}

	courseSvc := course.NewService(courseRepo)

	creds := lms.StaticCredentials(conf.LMS.SessionCookie)
	clients := func(_ context.Context, userID string) (lms.Client, error) {
		return lms.NewClient(conf, userID, creds, logger), nil
	}
	timelineSvc := timeline.NewService(timelineRepo, courseSvc, clients, conf.LMS.FallbackVersions, logger)

	app := echoapi.NewServer(
		&echoapi.Options{
			Address:     conf.Server.Address,
			TimelineSvc: timelineSvc,
			Logger:      logger,
		},
	)
	app.Start()
}

func errAndDie(std *log.Logger, err error) {
	if err != nil {
		std.Fatal(err)
	}
}
