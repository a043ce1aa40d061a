package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"shuttle/internal/utils"
)

// AMQPPublisher publishes JSON events to a durable topic exchange.
type AMQPPublisher struct {
	URL      string
	Exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects with exponential backoff and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{URL: url, Exchange: exchange}
	if err := p.connect(5); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect(attempts int) error {
	var err error
	for i := 1; i <= attempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(p.URL)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr != nil {
				_ = conn.Close()
				return fmt.Errorf("open channel: %w", chErr)
			}
			if declErr := ch.ExchangeDeclare(p.Exchange, "topic", true, false, false, false, nil); declErr != nil {
				_ = ch.Close()
				_ = conn.Close()
				return fmt.Errorf("declare exchange %s: %w", p.Exchange, declErr)
			}
			p.conn, p.ch = conn, ch
			utils.GetLogger().Info("connected to RabbitMQ", zap.String("exchange", p.Exchange))
			return nil
		}

		utils.GetLogger().Warn("RabbitMQ connect attempt failed", zap.Int("attempt", i), zap.Error(err))
		if i < attempts {
			time.Sleep(time.Second * time.Duration(math.Pow(2, float64(i))))
		}
	}
	return fmt.Errorf("connect to RabbitMQ after %d attempts: %w", attempts, err)
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(1); err != nil {
			return err
		}
	}

	err = p.ch.PublishWithContext(ctx, p.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
