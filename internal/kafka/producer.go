package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	checkins      *kafka.Writer
	registrations *kafka.Writer
}

func NewProducer(brokers []string, checkinTopic, registrationTopic string) *Producer {
	return &Producer{
		checkins: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   checkinTopic,
		}),
		registrations: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   registrationTopic,
		}),
	}
}

// PublishCheckIn streams a check-in to the gamification topic. Callers treat
// failures as log-and-continue: check-in correctness never depends on points.
func (p *Producer) PublishCheckIn(event CheckInEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.checkins.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.UserID),
		Value: msgBytes,
	})
}

func (p *Producer) publishRegistration(eventType string, registrationID, eventID, userID, status string) error {
	msgBytes, err := json.Marshal(RegistrationEvent{
		Type:           eventType,
		RegistrationID: registrationID,
		EventID:        eventID,
		UserID:         userID,
		Status:         status,
		Timestamp:      time.Now(),
	})
	if err != nil {
		return err
	}
	return p.registrations.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(eventID),
		Value: msgBytes,
	})
}

func (p *Producer) PublishRegistrationCreated(registrationID, eventID, userID, status string) error {
	return p.publishRegistration("created", registrationID, eventID, userID, status)
}

func (p *Producer) PublishRegistrationCancelled(registrationID, eventID, userID string) error {
	return p.publishRegistration("cancelled", registrationID, eventID, userID, "")
}

func (p *Producer) PublishRegistrationPromoted(registrationID, eventID, userID string) error {
	return p.publishRegistration("promoted", registrationID, eventID, userID, "REGISTERED")
}

func (p *Producer) Close() error {
	if err := p.checkins.Close(); err != nil {
		return err
	}
	return p.registrations.Close()
}
