package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"jupyter-proxy-apps/internal/model"
	"jupyter-proxy-apps/internal/platform/rabbitmq"
)

var errMalformedComment = errors.New("malformed comment")

type CommentCreator interface {
	Create(comment *model.Comment) error
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Invalidator drops cached comment lists once a comment is stored.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type CommentPersistWorker struct {
	conn      *amqp.Connection
	repo      CommentCreator
	cache     Invalidator
	queueName string
	log       *logrus.Entry

	retryDelay time.Duration
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewCommentPersistWorker(conn *amqp.Connection, repo CommentCreator, cache Invalidator, queueName string, log *logrus.Entry) *CommentPersistWorker {
	return &CommentPersistWorker{
		conn:      conn,
		repo:      repo,
		cache:     cache,
		queueName: queueName,
		log:       log.WithField("queue", queueName),

		retryDelay: time.Second,
	}
}

func (w *CommentPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.settle(workerCtx, d.Body, d)
			}
		}
	}()

	return nil
}

// settle stores one delivery and acks it. Malformed payloads are dropped;
// store failures go back on the queue after retryDelay.
func (w *CommentPersistWorker) settle(ctx context.Context, body []byte, d acknowledger) {
	err := w.handle(ctx, body)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	if errors.Is(err, errMalformedComment) {
		w.log.WithError(err).Warn("drop malformed comment")
		_ = d.Nack(false, false)
		return
	}

	w.log.WithError(err).Warn("persist comment failed, requeueing")
	if w.retryDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
	_ = d.Nack(false, true)
}

// handle stores one queued comment.
func (w *CommentPersistWorker) handle(ctx context.Context, body []byte) error {
	var comment model.Comment
	if err := json.Unmarshal(body, &comment); err != nil {
		return fmt.Errorf("%w: %v", errMalformedComment, err)
	}
	comment.ID = 0
	if err := w.repo.Create(&comment); err != nil {
		return err
	}
	if w.cache != nil {
		if err := w.cache.Invalidate(ctx); err != nil {
			w.log.WithError(err).Warn("invalidate comment cache failed")
		}
	}
	return nil
}

func (w *CommentPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
