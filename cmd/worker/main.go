// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/streadway/amqp"

	"github.com/hearthside/crm-backend/internal/config"
	"github.com/hearthside/crm-backend/internal/db"
	"github.com/hearthside/crm-backend/internal/delivery"
	"github.com/hearthside/crm-backend/internal/lifecycle"
	"github.com/hearthside/crm-backend/internal/repository"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	conn := db.MustConnect(cfg.DB)
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	sendLog := &repository.SendLogRepository{DB: conn}
	machine := &lifecycle.Machine{CampaignRepo: campaignRepo}

	sender := &delivery.Sender{
		Transport: &delivery.SMTPTransport{Addr: cfg.SMTP.Addr, From: cfg.SMTP.From},
		Metrics:   &delivery.Counters{},
		Log:       logger,
	}

	// Connect to RabbitMQ
	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		log.Fatal("Failed to open a channel:", err)
	}
	defer ch.Close()

	q, err := delivery.DeclareQueue(ch)
	if err != nil {
		log.Fatal("Failed to declare queue:", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal("Failed to register consumer:", err)
	}

	forever := make(chan bool)

	go func() {
		ctx := context.Background()
		for d := range msgs {
			var job delivery.Job
			if err := json.Unmarshal(d.Body, &job); err != nil {
				logger.Error("invalid job payload", "error", err)
				d.Ack(false)
				continue
			}

			rec := sender.Deliver(ctx, job)
			if err := sendLog.Record(rec); err != nil {
				logger.Error("failed to record send", "campaign_id", job.CampaignID, "error", err)
				d.Nack(false, true) // requeue
				continue
			}

			finishCampaign(logger, sendLog, machine, job)
			d.Ack(false)
		}
	}()

	logger.Info("worker running, waiting for messages")
	<-forever
}

// finishCampaign re-derives completion from the send log. Each worker
// process only sees its own slice of a campaign's jobs, so the count of
// terminal records against the fan-out size is the shared source of
// truth. The sending-to-sent flip is a conditional update, so racing
// workers complete a campaign exactly once.
func finishCampaign(logger *slog.Logger, sendLog repository.SendLogRepositoryInterface, machine *lifecycle.Machine, job delivery.Job) {
	if job.Expected <= 0 {
		return
	}
	stats, err := sendLog.StatsByCampaign(job.CampaignID)
	if err != nil {
		logger.Error("failed to read send stats", "campaign_id", job.CampaignID, "error", err)
		return
	}
	if stats["total"] < job.Expected {
		return
	}
	ok, err := machine.Complete(job.CampaignID)
	if err != nil {
		logger.Error("failed to complete campaign", "campaign_id", job.CampaignID, "error", err)
		return
	}
	if ok {
		logger.Info("campaign completed", "campaign_id", job.CampaignID,
			"sent", stats["sent"], "failed", stats["failed"])
	}
}
