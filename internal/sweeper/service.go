// Package sweeper owns the reservation lifecycle after order creation:
// a periodic pass expires ACTIVE holds past their 48h window, and an
// order.cancelled consumer releases holds early. Both put stock back.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/caskline/distro/internal/kafka"
	"github.com/caskline/distro/internal/orders"
	"github.com/caskline/distro/internal/redisx"
)

type Service struct {
	Repo             *orders.ReservationRepo
	Redis            *redis.Client
	Locker           *redislock.Client
	ProducerExpired  *kafkax.Producer
	ProducerReleased *kafkax.Producer
	Log              *logrus.Logger
	ServiceName      string
}

// SweepOnce expires due reservations under a distributed lock so only one
// sweeper instance works a given tick.
func (s *Service) SweepOnce(ctx context.Context) error {
	lock, err := s.Locker.Obtain(ctx, redisx.KeySweeperLock, redisx.TTLSweeperLock, nil)
	if err == redislock.ErrNotObtained {
		return nil // another instance has this tick
	}
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(ctx) }()

	expired, err := s.Repo.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	s.Log.WithFields(logrus.Fields{
		"module":  "sweeper",
		"expired": len(expired),
	}).Info("reservations expired")

	for _, res := range expired {
		s.publish(s.ProducerExpired, orders.EventReservationExpired, res, "")
	}
	return nil
}

// HandleOrderCancelled is the order.cancelled consumer handler: release all
// ACTIVE holds of the cancelled order.
func (s *Service) HandleOrderCancelled(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCancelled {
		return nil
	}

	// Dedup on event id so redelivery doesn't double-release.
	dkey := fmt.Sprintf(redisx.KeyDedup, "sweeper", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
	if err != nil {
		return err
	}

	released, err := s.Repo.ReleaseForOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	for _, res := range released {
		s.publish(s.ProducerReleased, orders.EventReservationReleased, res, env.TraceID)
	}
	return nil
}

func (s *Service) publish(p *kafkax.Producer, eventType string, res orders.Reservation, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: res.OrderID,
		Payload: kafkax.MustMarshal(orders.ReservationEventPayload{
			ReservationID: res.ID,
			OrderID:       res.OrderID,
			SKUID:         res.SKUID,
			Location:      res.Location,
			Quantity:      res.Quantity,
		}),
	}
	p.Publish(orders.PartitionKey(res.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
