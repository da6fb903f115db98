package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"agentlink/internal/domain"

	"github.com/segmentio/kafka-go"
)

type MessageHandler interface {
	HandleNewMessage(msg domain.ChatMessage)
	HandleAgentAssignment(msg domain.AgentAssignmentMessage)
	HandleAgentPresence(msg domain.AgentPresenceMessage)
}

type KafkaConsumer struct {
	readers []*kafka.Reader
	handler MessageHandler
}

func NewKafkaConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) *KafkaConsumer {
	var readers []*kafka.Reader

	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,                      // Read immediately, don't wait for batches
			MaxBytes:       10e6,                   // 10MB max
			CommitInterval: 100 * time.Millisecond, // Commit every 100ms instead of 1s
			StartOffset:    kafka.LastOffset,
			MaxWait:        100 * time.Millisecond, // Max wait 100ms for new data
		})
		readers = append(readers, reader)
	}

	return &KafkaConsumer{
		readers: readers,
		handler: handler,
	}
}

func (k *KafkaConsumer) Start(ctx context.Context) error {
	// Start consumers for each topic in separate goroutines
	for i := range k.readers {
		go func(readerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Recovered from panic in Kafka consumer goroutine %d: %v", readerIndex, r)
				}
			}()

			reader := k.readers[readerIndex]
			defer reader.Close()

			for {
				select {
				case <-ctx.Done():
					log.Printf("Kafka consumer for topic stopping...")
					return
				default:
					m, err := reader.ReadMessage(ctx)
					if err != nil {
						log.Printf("Error reading Kafka message: %v", err)
						continue
					}

					if k.handler != nil {
						k.handleMessage(m.Topic, m.Value)
					}
				}
			}
		}(i)
	}

	return nil
}

func (k *KafkaConsumer) handleMessage(topic string, value []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessage for topic %s: %v", topic, r)
		}
	}()

	switch topic {
	case "chat-messages":
		var chatMsg domain.ChatMessage
		if err := json.Unmarshal(value, &chatMsg); err != nil {
			log.Printf("Error unmarshaling chat message: %v", err)
			return
		}
		k.handler.HandleNewMessage(chatMsg)

	case "agent-assignments":
		var assignMsg domain.AgentAssignmentMessage
		if err := json.Unmarshal(value, &assignMsg); err != nil {
			log.Printf("Error unmarshaling assignment message: %v", err)
			return
		}
		k.handler.HandleAgentAssignment(assignMsg)

	case "agent-presence":
		var presenceMsg domain.AgentPresenceMessage
		if err := json.Unmarshal(value, &presenceMsg); err != nil {
			log.Printf("Error unmarshaling presence message: %v", err)
			return
		}
		k.handler.HandleAgentPresence(presenceMsg)

	default:
		log.Printf("Unknown topic: %s", topic)
	}
}

func (k *KafkaConsumer) Close() error {
	for i := range k.readers {
		if err := k.readers[i].Close(); err != nil {
			log.Printf("Error closing Kafka reader: %v", err)
		}
	}
	return nil
}
