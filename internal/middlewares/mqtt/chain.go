package mqtt_middleware

import (
	"fmt"
	"time"

	"github.com/benmeehan/trailsafe/pkg/mqtt"
)

// ChainedMQTTClient wraps an MQTT client with a middleware chain.
type ChainedMQTTClient struct {
	head MQTTMiddleware
}

// NewChainedMQTTClient links middlewares in order and ends the chain with the
// client itself. Each publish waits at most publishTimeout for the broker.
func NewChainedMQTTClient(mqttClient mqtt.MQTTClient, middlewares []MQTTMiddleware, publishTimeout time.Duration) *ChainedMQTTClient {
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	var next MQTTMiddleware = &directMQTTClient{mqttClient: mqttClient, timeout: publishTimeout}
	for i := len(middlewares) - 1; i >= 0; i-- {
		middlewares[i].SetNext(next)
		next = middlewares[i]
	}
	return &ChainedMQTTClient{head: next}
}

// Publish sends a message through the middleware chain.
func (c *ChainedMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return c.head.Publish(topic, qos, retained, payload)
}

// directMQTTClient terminates the chain and talks to the broker.
type directMQTTClient struct {
	mqttClient mqtt.MQTTClient
	timeout    time.Duration
}

func (d *directMQTTClient) SetNext(_ MQTTMiddleware) {}

func (d *directMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := d.mqttClient.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(d.timeout) {
		return fmt.Errorf("publish to %s timed out after %s", topic, d.timeout)
	}
	return token.Error()
}
