package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	attachmentapp "family_chat_service/internal/attachment/app"
	attachmentrepo "family_chat_service/internal/attachment/repository"
	"family_chat_service/internal/chat/app"
	"family_chat_service/internal/chat/repository"
	"family_chat_service/internal/chat/router"
	"family_chat_service/pkg/config"
	"family_chat_service/pkg/database"
	"family_chat_service/pkg/logger"
	testtool "family_chat_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)

	ctx := context.Background()

	// Mongo holds the message history
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", uri)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// Redis carries cross-node fan-out and the avatar cache
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// MinIO holds attachment blobs
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.Bucket,
		UseSSL:        cfg.MinIO.UseSSL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect minio err : %v", err))
	}

	// PostgreSQL keeps the attachment descriptor registry
	pgDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database)
	pg, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgDSN,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect postgres err : %v", err))
	}

	// RabbitMQ queues server-side waveform jobs
	rabbitConn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    cfg.Rabbit.URL,
		RetryCount:    cfg.Rabbit.RetryCount,
		RetryInterval: time.Duration(cfg.Rabbit.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect rabbitmq err : %v", err))
	}
	defer rabbitConn.Close()

	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(rabbitConn, cfg.Rabbit.RetryCount, time.Duration(cfg.Rabbit.RetryInterval))
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("open rabbitmq channel err : %v", err))
	}
	if _, err := rabbitChannel.QueueDeclare(cfg.Rabbit.WaveformQueue, true, false, false, false, nil); err != nil {
		logger.Log.Fatal(fmt.Sprintf("declare queue err : %v", err))
	}
	rabbitRepo := database.NewRabbitRepository(rabbitChannel)

	// Kafka archives every message event for offline processing
	kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.ArchiveTopic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect kafka err : %v", err))
	}
	defer kafkaWriter.Close()

	// repositories
	msgRepo := repository.NewMongoChatMessageRepository(mongo.Database)
	pubSub := repository.NewRedisPubSub(redisClient)
	archive := repository.NewKafkaEventArchive(kafkaWriter)
	avatarCache := database.NewRedisRepository[string](redisClient)
	avatars := repository.NewMemberAvatarRepository(cfg.MemberService.BaseURL, avatarCache, cfg.AvatarCacheTTL)

	attRepo := attachmentrepo.NewAttachmentRepo(pg)
	if err := attRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal(fmt.Sprintf("migrate attachments err : %v", err))
	}

	// use cases
	hub := app.NewRoomHub()
	delivery := app.NewDeliveryTracker(hub, 0)
	sendMessageUC := app.NewSendMessageUseCase(hub, msgRepo, pubSub, archive, delivery)
	sendMessageUC.SetWaveformQueue(rabbitRepo, cfg.Rabbit.WaveformQueue)
	pipeline := attachmentapp.NewPipelineUseCase(minioClient, attRepo)

	// messages published by other nodes reach local subscribers here
	go func() {
		if err := pubSub.SubscribeRooms(ctx, sendMessageUC.ReplayRemote); err != nil {
			logger.Log.Errorf("room subscription ended:", err)
		}
	}()

	// waveform jobs drain in-process; a dedicated worker can take this over
	consumer := attachmentapp.NewWaveformConsumer(rabbitRepo, minioClient, msgRepo, cfg.Rabbit.WaveformQueue)
	go consumer.StartConsumer(ctx)

	testtool.StartPprof()

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r,
		app.NewChatWebsocketHandler(hub, sendMessageUC, avatars, delivery),
		app.NewChatRestHandler(sendMessageUC, pipeline),
	)

	port := ":" + cfg.Port
	log.Printf("Chat Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
