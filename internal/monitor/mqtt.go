package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"RoverDrive/internal/model"
	"RoverDrive/internal/util"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher mirrors telemetry to an MQTT topic.
type Publisher struct {
	client  mqttClient
	topic   string
	timeout time.Duration
}

// ConnectPublisher connects to broker (tcp://host:port) and returns a publisher
// for topic. The client reconnects on its own after a lost connection.
func ConnectPublisher(broker, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		util.Info("[mqtt] connected to %s", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		util.Warn("[mqtt] connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, token.Error())
	}
	return newPublisher(client, topic), nil
}

func newPublisher(client mqttClient, topic string) *Publisher {
	return &Publisher{client: client, topic: topic, timeout: 2 * time.Second}
}

// Publish sends t as JSON with QoS 0.
func (p *Publisher) Publish(t model.Telemetry) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, false, b)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
