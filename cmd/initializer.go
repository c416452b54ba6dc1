package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	firebase "firebase.google.com/go"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"messengerBack/internal/auth"
	"messengerBack/internal/config"
	"messengerBack/internal/handlers"
	"messengerBack/internal/mailer"
	"messengerBack/internal/presence"
	"messengerBack/internal/realtime"
	"messengerBack/internal/repositories"
	"messengerBack/internal/repositories/docstore"
	"messengerBack/internal/repositories/memory"
	services "messengerBack/internal/services"
	"messengerBack/utils"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger
	cfg      config.Config

	issuer       *auth.TokenIssuer
	firebaseAuth *auth.FirebaseVerifier
	userRepo     services.UserStore
	sessions     services.SessionStore

	userService         *services.UserService
	chatService         *services.ChatService
	notificationService *services.NotificationService

	broker   *realtime.Broker
	presence *presence.Tracker

	userHandler    *handlers.UserHandler
	contactHandler *handlers.ContactHandler
	chatHandler    *handlers.ChatHandler
	messageHandler *handlers.MessageHandler
	fcmHandler     *handlers.FCMHandler

	// uploadsDir is served under cfg.Storage.LocalURL when avatars are kept
	// on disk.
	uploadsDir string
}

type stores struct {
	users    services.UserStore
	chats    services.ChatStore
	messages services.MessageStore
	tokens   services.DeviceTokenStore
}

func initializeApp(ctx context.Context, cfg config.Config, infoLog, errorLog *log.Logger) (*application, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*application, func(), error) {
		cleanup()
		return nil, func() {}, err
	}
	logger := logAdapter{info: infoLog, error: errorLog}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fail(fmt.Errorf("redis ping: %w", err))
		}
		closers = append(closers, func() { _ = rdb.Close() })
		infoLog.Printf("Connected to redis at %s", cfg.Redis.Addr)
	}

	var fbApp *firebase.App
	if cfg.FirebaseEnabled() {
		var opts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		var fbConfig *firebase.Config
		if cfg.Firebase.ProjectID != "" {
			fbConfig = &firebase.Config{ProjectID: cfg.Firebase.ProjectID}
		}
		app, err := firebase.NewApp(ctx, fbConfig, opts...)
		if err != nil {
			return fail(fmt.Errorf("firebase app: %w", err))
		}
		fbApp = app
	}

	mem := memory.New()
	var st stores
	switch cfg.Store.Backend {
	case "sql":
		db, err := openDB(cfg.Database.Driver, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = db.Close() })
		dialect := repositories.Dialect(cfg.Database.Driver)
		st = stores{
			users:    &repositories.UserRepository{DB: db, Dialect: dialect},
			chats:    &repositories.ChatRepository{Db: db, Dialect: dialect},
			messages: &repositories.MessageRepository{Db: db, Dialect: dialect},
			tokens:   &repositories.DeviceTokenRepository{DB: db, Dialect: dialect},
		}
	case "firestore":
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return fail(fmt.Errorf("firestore client: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		doc := docstore.New(client)
		st = stores{users: doc, chats: doc, messages: doc, tokens: doc}
	default:
		errorLog.Printf("Using the in-memory store, data is lost on restart")
		st = stores{users: mem, chats: mem, messages: mem, tokens: mem}
	}

	var (
		sessions   services.SessionStore   = mem
		resetCodes services.ResetCodeStore = mem
		tracker    *presence.Tracker
		bus        realtime.Bus = realtime.NewLocalBus()
	)
	if rdb != nil {
		sessions = repositories.NewSessionRepository(rdb)
		resetCodes = repositories.NewResetCodeRepository(rdb)
		tracker = presence.NewTracker(rdb, presence.DefaultTTL)
		if cfg.Realtime.Bus == "redis" {
			bus = realtime.NewRedisBus(rdb, realtime.DefaultChannel, logger)
		}
	} else {
		errorLog.Printf("redis is not configured: sessions are kept in memory and presence is disabled")
	}

	var storage utils.FileStorage
	var uploadsDir string
	if cfg.Storage.S3.Bucket != "" {
		s3Storage, err := utils.NewS3Storage(utils.S3Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			Region:    cfg.Storage.S3.Region,
			Bucket:    cfg.Storage.S3.Bucket,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			PublicURL: cfg.Storage.S3.PublicURL,
		})
		if err != nil {
			return fail(err)
		}
		storage = s3Storage
	} else {
		disk := utils.NewDiskStorage(cfg.Storage.LocalDir, cfg.Storage.LocalURL)
		storage = disk
		uploadsDir = disk.Dir()
	}

	var mail services.Mailer = mailer.LogMailer{Logger: logger}
	if cfg.SMTP.Host != "" {
		smtpMailer, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return fail(err)
		}
		mail = smtpMailer
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.AccessSigningKey, cfg.Auth.AccessTTL)
	if err != nil {
		return fail(err)
	}
	tokenManager, err := utils.NewManager(cfg.Auth.ResetSigningKey)
	if err != nil {
		return fail(err)
	}

	var firebaseAuth *auth.FirebaseVerifier
	if cfg.Firebase.VerifyIDTokens {
		client, err := fbApp.Auth(ctx)
		if err != nil {
			return fail(fmt.Errorf("firebase auth client: %w", err))
		}
		firebaseAuth = auth.NewFirebaseVerifier(client)
	}

	broker := realtime.NewBroker(realtime.NewHub(logger), bus, logger)

	notificationService := &services.NotificationService{TokenRepo: st.tokens, Logger: logger}
	if tracker != nil {
		notificationService.Presence = tracker
	}
	if cfg.Firebase.FCM {
		client, err := fbApp.Messaging(ctx)
		if err != nil {
			return fail(fmt.Errorf("firebase messaging client: %w", err))
		}
		notificationService.Pusher = client
	}

	userService := &services.UserService{
		UserRepo:     st.users,
		Sessions:     sessions,
		ResetCodes:   resetCodes,
		DeviceTokens: st.tokens,
		Storage:      storage,
		Mailer:       mail,
		Issuer:       issuer,
		TokenManager: tokenManager,
		RefreshTTL:   cfg.Auth.RefreshTTL,
		ResetTTL:     cfg.Auth.ResetTTL,
		Logger:       logger,
	}
	chatService := &services.ChatService{
		ChatRepo:    st.chats,
		MessageRepo: st.messages,
		UserRepo:    st.users,
		Publisher:   broker,
		Logger:      logger,
	}
	messageService := &services.MessageService{
		MessageRepo: st.messages,
		UserRepo:    st.users,
		Chats:       chatService,
		Publisher:   broker,
		Notifier:    notificationService,
		Logger:      logger,
	}
	contactService := &services.ContactService{UserRepo: st.users, ChatRepo: st.chats}

	return &application{
		errorLog:            errorLog,
		infoLog:             infoLog,
		cfg:                 cfg,
		issuer:              issuer,
		firebaseAuth:        firebaseAuth,
		userRepo:            st.users,
		sessions:            sessions,
		userService:         userService,
		chatService:         chatService,
		notificationService: notificationService,
		broker:              broker,
		presence:            tracker,
		userHandler:         &handlers.UserHandler{Service: userService},
		contactHandler:      &handlers.ContactHandler{ContactService: contactService},
		chatHandler:         &handlers.ChatHandler{ChatService: chatService},
		messageHandler:      &handlers.MessageHandler{MessageService: messageService},
		fcmHandler:          handlers.NewFCMHandler(notificationService),
		uploadsDir:          uploadsDir,
	}, cleanup, nil
}

func openDB(driver, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	if err = db.Ping(); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	log.Println("Successfully connected to database")
	return db, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
