package mqtt_middleware

// MQTTMiddleware is one link in the publish chain. A middleware either
// forwards to next or stops the message.
type MQTTMiddleware interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	SetNext(next MQTTMiddleware)
}

// Publisher is what services hold: the head of the chain.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
}
