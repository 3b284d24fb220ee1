package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"student-records-backend/log"
)

type Type string

const (
	Registered      Type = "student.registered"
	Updated         Type = "student.updated"
	Deleted         Type = "student.deleted"
	Invited         Type = "student.invited"
	PasswordChanged Type = "student.password_changed"
	ResetRequested  Type = "student.reset_requested"
	PasswordReset   Type = "student.password_reset"
)

// StudentEvent carries ids only, never record contents.
type StudentEvent struct {
	ID        uuid.UUID
	Type      Type
	StudentID string
	At        time.Time
}

func New(t Type, studentID string) *StudentEvent {
	return &StudentEvent{
		ID:        uuid.New(),
		Type:      t,
		StudentID: studentID,
		At:        time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e *StudentEvent) error
	Close() error
}

// Emit publishes e and only logs a failure: the change it describes is
// already committed.
func Emit(ctx context.Context, p Publisher, e *StudentEvent) {
	if err := p.Publish(ctx, e); err != nil {
		log.Logger.Warn("unable to publish event",
			zap.Error(err),
			zap.String("type", string(e.Type)),
			zap.String("studentID", e.StudentID),
		)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, *StudentEvent) error { return nil }
func (Nop) Close() error                                 { return nil }

type AMQP struct {
	Conn     *amqp.Connection
	exchange string
}

// Dial connects with exponential backoff and declares exchange as a durable
// fanout.
func Dial(url, exchange string) (*AMQP, error) {
	log.Logger.Info("Trying to connect to rabbitmq...")

	var conn *amqp.Connection
	t := time.Second
	for i := 0; i < 6; i++ {
		var err error
		conn, err = amqp.Dial(url)
		if err != nil {
			if i == 5 {
				return nil, fmt.Errorf("events: dial: %w", err)
			}
			log.Logger.Debug("rabbitmq not ready", zap.Error(err), zap.Duration("retry", t))
			time.Sleep(t)
			t *= 2

			continue
		}

		break
	}
	log.Logger.Info("Connected to rabbitmq")

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}

	return &AMQP{Conn: conn, exchange: exchange}, nil
}

func (a *AMQP) Publish(ctx context.Context, e *StudentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := Encode(e)
	if err != nil {
		return err
	}

	rch, err := a.Conn.Channel()
	if err != nil {
		return err
	}
	defer rch.Close()

	return rch.Publish(a.exchange, string(e.Type), false, false, amqp.Publishing{
		ContentType:  ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.At,
		Type:         string(e.Type),
		Body:         body,
	})
}

func (a *AMQP) Close() error {
	return a.Conn.Close()
}
