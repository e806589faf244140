package modules

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
)

// ModuleQueue — имя queue модуля.
const ModuleQueue = "queue"

// QueueModule — модуль публикации сообщения в RabbitMQ.
//
// Адрес брокера берётся из параметров шага, при отсутствии — из
// окружения запуска (AMQP_URL).
//
// Параметры:
//
//	queue:    имя очереди (обязательный)
//	message:  тело сообщения (строка или сериализуемый в JSON объект)
//	url:      адрес брокера
//	exchange: exchange (по умолчанию default exchange)
//
// Очередь объявляется durable, сообщение публикуется persistent.
//
// Результат: {"queue": ..., "bytes": n}.
type QueueModule struct{}

// NewQueueModule создаёт новый QueueModule.
func NewQueueModule() *QueueModule {
	return &QueueModule{}
}

// Name возвращает имя модуля.
func (m *QueueModule) Name() string {
	return ModuleQueue
}

// Run публикует сообщение.
func (m *QueueModule) Run(ctx context.Context, rc *runctx.RunContext, params map[string]any) (any, error) {
	queue := ParamString(params, "queue")
	if queue == "" {
		return nil, fmt.Errorf("%w: %s: queue is required", module.ErrInvalidParams, ModuleQueue)
	}
	message, ok := params["message"]
	if !ok {
		return nil, fmt.Errorf("%w: %s: message is required", module.ErrInvalidParams, ModuleQueue)
	}

	url := paramOrEnv(rc, params, "url", "AMQP_URL")
	if url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", module.ErrInvalidParams, ModuleQueue)
	}

	body, err := serializeBody(message)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	rc.Logf("queue: publish %d bytes to %s", len(body), queue)

	err = ch.PublishWithContext(ctx,
		ParamString(params, "exchange"),
		queue,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentType(message),
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, fmt.Errorf("%w: %v", module.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("publish to %s: %w", queue, err)
	}

	return map[string]any{
		"queue": queue,
		"bytes": len(body),
	}, nil
}

func contentType(message any) string {
	switch message.(type) {
	case string, []byte:
		return "text/plain"
	default:
		return "application/json"
	}
}
