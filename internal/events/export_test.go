package events

// NewKafkaPublisherWithWriter lets tests capture produced messages.
func NewKafkaPublisherWithWriter(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}
