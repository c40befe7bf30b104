package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/core/auth"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/services/broker"
	"github.com/trezcool/educore/services/email"
	"github.com/trezcool/educore/services/logger"
	"github.com/trezcool/educore/storage/database"
	"github.com/trezcool/educore/storage/database/sqlx"
)

func main() {
	var exitCode int
	defer func() { os.Exit(exitCode) }()

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()
	if err = db.Ping(); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	defer mailSvc.Wait()

	var events registration.EventPublisher
	if conf.Broker.URL != "" {
		publisher, err := brokersvc.NewRabbitMQPublisher(conf.Broker.URL, conf.Broker.Queue, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up broker: %v", err), err)
		}
		defer publisher.Close()
		events = publisher
	}
	regSvc := registration.NewService(sqlxrepos.NewRegistrationRepository(db), mailSvc, events, logger, conf)

	secret := []byte(conf.SecretKey)
	pipeline := action.NewPipeline(
		admission.NewMemoryLimiter(admission.Settings{Limit: conf.Admission.Limit, Window: conf.Admission.Window}),
		auth.NewGate(auth.NewValidator(secret), auth.DefaultPolicy, logger),
		action.NewBridge(conf, core.NewTranslator(), logger),
		nil,
	)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		issuer:   auth.NewIssuer(secret, conf.AppName, conf.Server.SessionTTL),
		pipeline: pipeline,
		regSvc:   regSvc,
		session:  new(auth.SessionHolder),
		out:      os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		exitCode = 1
	}
}
