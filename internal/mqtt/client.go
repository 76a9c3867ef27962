package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	"fieldsim/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("fieldsim_%d", rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:           mqtt.NewClient(opts),
		cfg:              cfg.MQTT,
		setCommandRegexp: setCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

type MQTTClient struct {
	client           mqtt.Client
	cfg              config.MQTTConfig
	setCommandRegexp *regexp.Regexp
}

// ParsedPointCommand is a write to one point received over MQTT. ObjectID
// is the short wire form ("ai1", "av1", ...); the payload is left raw.
type ParsedPointCommand struct {
	DeviceName string
	ObjectID   string
	Payload    string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

// PointStateTopic is where committed point values are published:
// <base>/<device>/<oid>/state
func (c *MQTTClient) PointStateTopic(deviceName, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.baseTopic(), deviceName, objectID)
}

// PointSetTopic is where clients write writable points:
// <base>/<device>/<oid>/set
func (c *MQTTClient) PointSetTopic(deviceName, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/set", c.baseTopic(), deviceName, objectID)
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedPointCommand, error) {
	matches := c.setCommandRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 3 {
		return nil, errors.New("invalid command topic")
	}
	return &ParsedPointCommand{
		DeviceName: matches[0][1],
		ObjectID:   matches[0][2],
		Payload:    string(msg.Payload()),
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// SubscribeToCommandTopic subscribes to every device's set topics.
func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(fmt.Sprintf("%s/+/+/set", c.baseTopic()), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func setCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/([a-zA-Z0-9_-]+)/([a-z]{2}[0-9]+)/set$", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
