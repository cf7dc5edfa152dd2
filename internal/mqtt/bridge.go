package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout      = 10 * time.Second
	publishTimeout      = 5 * time.Second
	subscribeTimeout    = 10 * time.Second
	keepAlive           = 30 * time.Second
	retryInterval       = 5 * time.Second
	disconnectQuiesceMs = 1000
)

// Commander executes machine commands received from the broker.
type Commander interface {
	ExecuteCommand(ctx context.Context, cmd machine.Command) error
}

// client is the part of paho.Client the bridge uses.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Bridge mirrors machine events onto MQTT topics and accepts commands from
// the broker.
type Bridge struct {
	client   client
	prefix   string
	qos      byte
	commands Commander
	logger   *zap.Logger
}

func NewBridge(cfg config.MQTTConfig, commands Commander, logger *zap.Logger) *Bridge {
	b := &Bridge{
		prefix:   cfg.TopicPrefix,
		qos:      byte(cfg.QoS),
		commands: commands,
		logger:   logger,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetKeepAlive(keepAlive).
		SetOnConnectHandler(func(paho.Client) {
			// Subscriptions do not survive a reconnect with a clean session
			if err := b.subscribe(); err != nil {
				logger.Error("MQTT command subscription failed", zap.Error(err))
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("MQTT connection lost", zap.Error(err))
		})

	b.client = paho.NewClient(opts)
	return b
}

func EventTopic(prefix string, name events.Name) string {
	return prefix + "/events/" + string(name)
}

func CommandTopic(prefix string) string {
	return prefix + "/commands"
}

// Connect connects to the broker. The command subscription is made by the
// on-connect handler.
func (b *Bridge) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	b.logger.Info("MQTT bridge connected",
		zap.String("commands", CommandTopic(b.prefix)))
	return nil
}

func (b *Bridge) subscribe() error {
	topic := CommandTopic(b.prefix)
	token := b.client.Subscribe(topic, b.qos, b.handleCommand)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("%w: %s: timeout", ErrSubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Run publishes events from feed until it closes or ctx is done.
func (b *Bridge) Run(ctx context.Context, feed <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-feed:
			if !ok {
				return
			}
			if err := b.Publish(e); err != nil {
				b.logger.Debug("MQTT publish skipped",
					zap.String("event", string(e.Name)),
					zap.Error(err))
			}
		}
	}
}

// Publish sends e to its event topic. State events are retained so new
// subscribers see the current value; ERROR and WARNING are not.
func (b *Bridge) Publish(e events.Event) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	token := b.client.Publish(EventTopic(b.prefix, e.Name), b.qos, !e.Name.Transient(), payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (b *Bridge) handleCommand(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		b.logger.Warn("Ignoring MQTT command",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
		return
	}

	if err := b.commands.ExecuteCommand(context.Background(), cmd); err != nil {
		b.logger.Error("MQTT command failed",
			zap.String("command", string(cmd)),
			zap.Error(err))
	}
}

// ParseCommand accepts either a bare command name or {"command": "..."}.
func ParseCommand(payload []byte) (machine.Command, error) {
	text := strings.TrimSpace(string(payload))

	if strings.HasPrefix(text, "{") {
		var body struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		text = body.Command
	}

	cmd, err := machine.ParseCommand(text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return cmd, nil
}

func (b *Bridge) Close() {
	b.client.Disconnect(disconnectQuiesceMs)
	b.logger.Info("MQTT bridge disconnected")
}
