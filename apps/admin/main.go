package main

import (
	"log"
	"os"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/reminder"
	emailsvc "github.com/trezcool/ahadi/services/email"
	logsvc "github.com/trezcool/ahadi/services/logger"
	"github.com/trezcool/ahadi/storage/database"
	sqlxrepos "github.com/trezcool/ahadi/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	appDB := database.NewDB(db)
	clock := core.NewClock()
	appLogger := logsvc.NewStdLogger(logger)

	// set up repositories & the services the sweep command needs
	usrRepo := sqlxrepos.NewUserRepository(db)
	commitmentRepo := sqlxrepos.NewCommitmentRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	reminderRepo := sqlxrepos.NewReminderRepository(db)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else if conf.SendgridApiKey != "" {
		mailSvc = emailsvc.NewSendgridService(conf, appLogger)
	} else {
		mailSvc = emailsvc.NewSMTPService(conf, appLogger)
	}
	core.ParseEmailTemplates(conf, appLogger)

	courseSvc := course.NewService(appDB, courseRepo, commitmentRepo)
	reminderSvc := reminder.NewService(appDB, reminderRepo, commitmentRepo, usrRepo, mailSvc, clock, conf, appLogger)
	commitmentSvc := commitment.NewService(appDB, commitmentRepo, courseSvc, reminderSvc, clock)

	// start CLI
	cli := commandLine{
		db:            db.DB,
		usrRepo:       usrRepo,
		commitmentSvc: commitmentSvc,
		reminderSvc:   reminderSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
