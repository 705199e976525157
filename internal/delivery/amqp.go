// internal/delivery/amqp.go
package delivery

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

const QueueName = "campaign_sends"

// AMQPPublisher pushes jobs onto RabbitMQ instead of the in-process
// pool; cmd/worker drains them with the same Sender pipeline.
type AMQPPublisher struct {
	Channel *amqp.Channel
	Metrics Metrics
}

// DeclareQueue declares the durable delivery queue on a channel. Both
// the publisher and the worker call it so either side can start first.
func DeclareQueue(ch *amqp.Channel) (amqp.Queue, error) {
	return ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (p *AMQPPublisher) Enqueue(job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	err = p.Channel.Publish(
		"",
		QueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}
	if p.Metrics != nil {
		p.Metrics.IncEnqueued()
	}
	return nil
}

var _ Enqueuer = (*AMQPPublisher)(nil)
