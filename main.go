package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"student-records-backend/codec"
	"student-records-backend/config"
	"student-records-backend/events"
	"student-records-backend/handler"
	"student-records-backend/jwt"
	"student-records-backend/log"
	"student-records-backend/mail"
	"student-records-backend/ops"
	"student-records-backend/store"
	"student-records-backend/store/mongo"
	"student-records-backend/store/sqlite"
)

func openStore(ctx context.Context, cfg config.Storage, cd *codec.Codec) (store.Students, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := mongo.Connect(ctx, cfg.MongoURI, cfg.Database, func(email string) string {
			return cd.Index(cd.Open(email))
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func openPublisher(cfg config.AMQP) (events.Publisher, error) {
	if cfg.URL == "" {
		log.Logger.Info("RABBITMQ_CONNSTRING not set, events are not published")
		return events.Nop{}, nil
	}
	return events.Dial(cfg.URL, cfg.Exchange)
}

func main() {
	log.EnsureLogger(os.Getenv("ENV"))
	defer log.Sync()

	cfg := config.MustLoad()

	if cfg.DefaultSecrets() {
		log.Logger.Warn("running with the default development secrets")
	}

	cd, err := codec.New(cfg.Crypto.FieldSecret, codec.Options{
		Salt:       cfg.Crypto.KeySalt,
		Iterations: cfg.Crypto.Iterations,
		Legacy:     cfg.Crypto.Legacy,
	})
	if err != nil {
		log.Logger.Fatal("failed to derive field keys", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	students, err := openStore(ctx, cfg.Storage, cd)
	if err != nil {
		log.Logger.Fatal("failed connecting to database", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}

	sender, err := mail.NewSender(cfg.Mail)
	if err != nil {
		log.Logger.Fatal("failed to set up mail transport", zap.Error(err))
	}

	publisher, err := openPublisher(cfg.AMQP)
	if err != nil {
		log.Logger.Fatal("failed connecting to message broker", zap.Error(err))
	}

	e := handler.NewServer(handler.Deps{
		Students:    students,
		Codec:       cd,
		Transit:     codec.Passphrase(cfg.Crypto.ClientKey),
		JWT:         jwt.NewJWT(cfg.JWT),
		Mail:        sender,
		Events:      publisher,
		FrontendURL: cfg.Mail.FrontendURL,
		ClientURL:   cfg.Mail.ClientURL,
		ResetTTL:    cfg.JWT.ResetTTL,
	}, handler.Options{
		APIKey:       cfg.APIKey,
		RequireAdmin: cfg.RequireAdmin,
	})

	opsServer := ops.New(students, 15*time.Second)
	lis, err := net.Listen("tcp", cfg.OpsAddr)
	if err != nil {
		log.Logger.Fatal("failed to listen", zap.Error(err), zap.String("addr", cfg.OpsAddr))
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	go opsServer.Watch(watchCtx)

	go func() {
		log.Logger.Info("ops server listening", zap.String("addr", cfg.OpsAddr))
		if err := opsServer.Serve(lis); err != nil {
			log.Logger.Fatal("couldn't serve ops server", zap.Error(err))
		}
	}()

	go func() {
		log.Logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Fatal("couldn't serve http server", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Logger.Info("shutting down")
	stopWatch()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Logger.Error("failed to shut down http server", zap.Error(err))
	}
	opsServer.Stop()

	if err := publisher.Close(); err != nil {
		log.Logger.Warn("failed to close publisher", zap.Error(err))
	}
	if err := students.Close(shutdownCtx); err != nil {
		log.Logger.Warn("failed to close database", zap.Error(err))
	}

	log.Logger.Info("server stopped")
}
