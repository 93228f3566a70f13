package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"jupyter-proxy-apps/internal/model"
)

// CommentPublisher hands new comments to the persist worker through a
// durable queue.
type CommentPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewCommentPublisher(conn *amqp.Connection, queueName string) *CommentPublisher {
	return &CommentPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *CommentPublisher) Publish(ctx context.Context, comment model.Comment) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("marshal comment payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish comment failed: %w", err)
	}
	return nil
}
