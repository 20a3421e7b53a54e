// Package mqtt hosts the broker connection and every MQTT-derived adapter:
// the phase-current per-field accumulator, the ruuvi/door/button JSON
// subscribers, and the MCB MQTT-fallback observer. A single paho client
// connects and every raw topic is forwarded onto a
// github.com/btittelbach/pubsub fan-out, the same shape
// SubscribeAndPublishToPubSub uses in realraum-door_and_sensors; each
// adapter then subscribes to the pubsub topic it cares about instead of
// registering its own paho callback.
package mqtt

import (
	"fmt"
	"log"
	"time"

	"github.com/btittelbach/pubsub"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/cenkalti/backoff/v4"
)

// Topics the client fans raw paho messages out to. Each corresponds to one
// MQTT subscription filter below.
const (
	topicPhase  = "phase"
	topicRuuvi  = "ruuvi"
	topicDoor   = "door"
	topicButton = "button"
	topicMcb    = "mcb"
)

// Client owns the broker connection and the pubsub fan-out every
// MQTT-derived adapter subscribes to.
type Client struct {
	raw    paho.Client
	ps     *pubsub.PubSub
	prefix string
}

// Connect dials broker with up to 4 retries of increasing backoff — the
// same cenkalti/backoff/v4 shape LeonardoBeccarini-SDCC_Project's
// NewRabbitMQConn uses to retry an MQTT connect — then subscribes to every
// topic this package's adapters need under prefix and starts fanning them
// out over pubsub. Reconnects after the initial connect are handled by
// paho's own AutoReconnect; resubscription on reconnect is paho's
// responsibility via the options below.
func Connect(broker, clientID, prefix string) (*Client, error) {
	ps := pubsub.New(64)

	c := &Client{ps: ps, prefix: prefix}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect)

	client := paho.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		token := client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("mqtt: connect timeout")
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect attempt failed: %v", err)
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, 4))
	if err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}

	c.raw = client
	return c, nil
}

// onConnect (re)subscribes every filter this package needs. Registered as
// paho's OnConnectHandler so resubscription happens automatically after a
// reconnect, not just on the first connect.
func (c *Client) onConnect(client paho.Client) {
	subs := map[string]string{
		c.prefix + "/phase/+": topicPhase,
		c.prefix + "/ruuvi":   topicRuuvi,
		c.prefix + "/door":    topicDoor,
		c.prefix + "/button":  topicButton,
		c.prefix + "/mcb":     topicMcb,
	}
	for filter, pstopic := range subs {
		pstopic := pstopic
		token := client.Subscribe(filter, 0, func(_ paho.Client, msg paho.Message) {
			c.ps.Pub(msg, pstopic)
		})
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("mqtt: subscribe %s: %v", filter, err)
		}
	}
}

// sub returns a channel of raw paho.Message values published under
// pstopic, and a matching unsubscribe func.
func (c *Client) sub(pstopic string) (<-chan any, func()) {
	ch := c.ps.Sub(pstopic)
	return ch, func() { c.ps.Unsub(ch, pstopic) }
}

// Close disconnects from the broker and shuts down the pubsub fan-out. Any
// adapter still subscribed will see its channel close.
func (c *Client) Close() error {
	if c.raw != nil {
		c.raw.Disconnect(250)
	}
	c.ps.Shutdown()
	return nil
}
