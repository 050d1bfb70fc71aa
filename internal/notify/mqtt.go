package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends raw messages to an MQTT broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// ///////////////////////////////////////////////
// Paho Publisher
// ///////////////////////////////////////////////

// PahoPublisher publishes through a paho client.
type PahoPublisher struct {
	client paho.Client
}

// DialMQTT connects to broker and returns a publisher. The client reconnects
// on its own after the initial connection succeeds.
func DialMQTT(broker, clientID string) (*PahoPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	return &PahoPublisher{client: client}, nil
}

// Publish sends payload at QoS 1, not retained, and waits for the broker's
// acknowledgement or ctx.
func (p *PahoPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

// Close disconnects from the broker, allowing in-flight work a second to
// complete.
func (p *PahoPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// ///////////////////////////////////////////////
// Sink
// ///////////////////////////////////////////////

// MQTTSink publishes JSON payloads under a topic prefix, one subtopic per
// event kind (e.g. "presencewatch/major-nelson/game_change").
type MQTTSink struct {
	pub   Publisher
	topic string
}

// NewMQTTSink returns a sink publishing through pub under topic.
func NewMQTTSink(pub Publisher, topic string) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic}
}

// Name implements [Sink].
func (s *MQTTSink) Name() string { return "mqtt" }

// Send publishes p.
func (s *MQTTSink) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	topic := s.topic + "/" + p.Kind.String()
	if err := s.pub.Publish(ctx, topic, body); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects the underlying publisher.
func (s *MQTTSink) Close() error {
	return s.pub.Close()
}
