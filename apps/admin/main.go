package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/user"
	"github.com/pnl-akademik/disiplin/services/auth"
	emailsvc "github.com/pnl-akademik/disiplin/services/email"
	logsvc "github.com/pnl-akademik/disiplin/services/logger"
	"github.com/pnl-akademik/disiplin/storage/database"
	sqlxrepos "github.com/pnl-akademik/disiplin/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	ctx := context.Background()

	// set up DB
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	backend, err := auth.NewBackend(conf, db)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up identity backend: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleService(conf, logger).Synchronous(os.Stdout)

	// start CLI
	cli := commandLine{
		db:      db,
		usrSvc:  user.NewService(usrRepo, backend, validate, logger),
		backend: backend,
		engine:  enroll.NewEngine(usrRepo, mailSvc, logger, nil, enroll.NewOptions(conf.Enrollment)),
		out:     os.Stdout,
	}
	err = cli.run(ctx, os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
