// cmd/server/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"

	"github.com/hearthside/crm-backend/internal/auth"
	"github.com/hearthside/crm-backend/internal/config"
	"github.com/hearthside/crm-backend/internal/controller"
	"github.com/hearthside/crm-backend/internal/db"
	"github.com/hearthside/crm-backend/internal/delivery"
	"github.com/hearthside/crm-backend/internal/draft"
	"github.com/hearthside/crm-backend/internal/handler"
	"github.com/hearthside/crm-backend/internal/lifecycle"
	"github.com/hearthside/crm-backend/internal/repository"
	"github.com/hearthside/crm-backend/internal/scheduler"
	"github.com/hearthside/crm-backend/internal/segment"
	"github.com/hearthside/crm-backend/internal/service"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	conn := db.MustConnect(cfg.DB)
	defer conn.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	segmentRepo := &repository.SegmentRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	sequenceRepo := &repository.SequenceRepository{DB: conn}
	sendLog := &repository.SendLogRepository{DB: conn}

	machine := &lifecycle.Machine{CampaignRepo: campaignRepo}
	resolver := &segment.Resolver{
		SegmentRepo:   segmentRepo,
		ContactRepo:   contactRepo,
		PublicBaseURL: cfg.PublicBaseURL,
	}

	sender := &delivery.Sender{
		Transport: &delivery.SMTPTransport{Addr: cfg.SMTP.Addr, From: cfg.SMTP.From},
		Metrics:   &delivery.Counters{},
		Log:       logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var enqueuer delivery.Enqueuer
	var queue *delivery.Queue
	switch cfg.QueueDriver {
	case "amqp":
		amqpConn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("cannot connect to RabbitMQ: %s", err)
		}
		defer amqpConn.Close()
		ch, err := amqpConn.Channel()
		if err != nil {
			log.Fatalf("cannot open AMQP channel: %s", err)
		}
		if _, err := delivery.DeclareQueue(ch); err != nil {
			log.Fatalf("cannot declare queue: %s", err)
		}
		enqueuer = &delivery.AMQPPublisher{Channel: ch, Metrics: &delivery.Counters{}}
	default:
		queue = delivery.NewQueue(sender, sendLog, cfg.DeliveryWorkers)
		queue.Log = logger
		queue.Start(ctx)
		defer queue.Stop()
		enqueuer = queue
	}

	dispatcher := &scheduler.Dispatcher{
		Resolver: resolver,
		Machine:  machine,
		Enqueuer: enqueuer,
		Log:      logger,
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		SegmentRepo:  segmentRepo,
		SendLog:      sendLog,
		Machine:      machine,
		Dispatcher:   dispatcher,
		Log:          logger,
	}
	if queue != nil {
		queue.OnComplete = campaignService.CompleteCampaign
	}

	sequenceService := &service.SequenceService{
		SequenceRepo: sequenceRepo,
		Campaigns:    campaignService,
		Log:          logger,
	}

	sched := &scheduler.Scheduler{
		CampaignRepo: campaignRepo,
		Machine:      machine,
		Dispatcher:   dispatcher,
		Log:          logger,
		Interval:     cfg.SchedulerInterval,
	}
	sched.Start(ctx)
	defer sched.Stop()

	draftStore := &draft.RedisStore{Client: rdb}
	sessions := &auth.RedisSessionStore{Client: rdb}

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	segmentHandler := &handler.SegmentHandler{Repo: segmentRepo, Log: logger}
	sequenceHandler := &handler.SequenceHandler{Service: sequenceService}

	r := chi.NewRouter()

	// Cron hook, no session required
	r.Post("/scheduler/run", handler.RunScheduler(logger, sched))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessions))

		// Campaign routes
		r.Post("/campaigns", campaignController.CreateCampaign)
		r.Get("/campaigns", campaignController.ListCampaigns)
		r.Get("/campaigns/{id}", campaignController.GetCampaign)
		r.Patch("/campaigns/{id}", campaignController.UpdateCampaign)
		r.Delete("/campaigns/{id}", campaignController.DeleteCampaign)
		r.Post("/campaigns/{id}/send", campaignController.SendCampaign)

		// Segment routes
		r.Get("/segments", segmentHandler.List)
		r.Post("/segments", segmentHandler.Create)
		r.Get("/segments/{id}", segmentHandler.Get)
		r.Patch("/segments/{id}", segmentHandler.Update)
		r.Delete("/segments/{id}", segmentHandler.Delete)
		r.Post("/segments/{id}/members", segmentHandler.AddMembers)
		r.Delete("/segments/{id}/members", segmentHandler.RemoveMembers)

		// Sequence routes
		r.Get("/sequences", sequenceHandler.List)
		r.Post("/sequences", sequenceHandler.Create)
		r.Get("/sequences/{id}", sequenceHandler.Get)
		r.Patch("/sequences/{id}", sequenceHandler.Update)
		r.Delete("/sequences/{id}", sequenceHandler.Delete)
		r.Post("/sequences/{id}/start", sequenceHandler.Start)

		// Editor support
		r.Get("/autosave", handler.LoadDraft(logger, draftStore))
		r.Post("/autosave", handler.SaveDraft(logger, draftStore))
		r.Post("/email/render", handler.RenderPreview())
	})

	logger.Info("server listening", "addr", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
