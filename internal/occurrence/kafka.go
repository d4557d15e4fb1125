package occurrence

import (
	gojson "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// GenerateKafkaMessageBatch prepares one message per occurrence, keyed by
// fingerprint: occurrences of the same issue land on the same partition.
func GenerateKafkaMessageBatch(occurrences []Occurrence) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(occurrences))
	for _, o := range occurrences {
		b, err := gojson.Marshal(o)
		if err != nil {
			return nil, err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(o.Fingerprint),
			Value: b,
		})
	}
	return messages, nil
}
