package eventbus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/sirupsen/logrus"
)

// EventBusEngine exposes the publisher and subscriber sides of a
// messaging backend.
type EventBusEngine interface {
	Subscriber() (message.Subscriber, error)
	Publisher() (message.Publisher, error)
}

func NewEventBusEngine(conf config.EventBusEngine, serviceID string, logger *logrus.Entry) (EventBusEngine, error) {
	switch conf.Provider {
	case config.Channel:
		return NewChannelEngine(serviceID, logger)
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", conf.Provider)
	}
}

type ChannelEngine struct {
	logger     *logrus.Entry
	serviceID  string
	subscriber message.Subscriber
	publisher  message.Publisher
}

func NewChannelEngine(serviceID string, logger *logrus.Entry) (EventBusEngine, error) {
	pub, sub := NewGoChannelPubSub(logger)

	return &ChannelEngine{
		logger:     logger,
		serviceID:  serviceID,
		publisher:  pub,
		subscriber: sub,
	}, nil
}

func (e *ChannelEngine) Subscriber() (message.Subscriber, error) {
	return e.subscriber, nil
}

func (e *ChannelEngine) Publisher() (message.Publisher, error) {
	return e.publisher, nil
}

func NewGoChannelPubSub(logger *logrus.Entry) (message.Publisher, message.Subscriber) {
	lEventBus := NewLoggerAdapter(logger.WithField("subsystem-provider", "GoChannel - PubSub"))
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, lEventBus)
	return pubSub, pubSub
}
