package eventpub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{messages: map[string][]*message.Message{}}
}

func (p *capturingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[topic] = append(p.messages[topic], messages...)
	return nil
}

func (p *capturingPublisher) Close() error {
	return nil
}

func (p *capturingPublisher) published(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[topic]
}

// stubBroker answers every operation with canned values.
type stubBroker struct {
	services.BrokerService
	generateErr error
}

func (s *stubBroker) GenerateKey(ctx context.Context, input services.GenerateKeyInput) (*models.KeyHandle, error) {
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &models.KeyHandle{ID: "handle-1", State: models.HandleActive}, nil
}

func (s *stubBroker) DestroyHandle(ctx context.Context, input services.DestroyHandleInput) (*models.KeyHandle, error) {
	return &models.KeyHandle{ID: input.HandleID, State: models.HandleDestroyed}, nil
}

func (s *stubBroker) SignMessage(ctx context.Context, input services.SignMessageInput) (*models.MessageSignature, error) {
	return &models.MessageSignature{Signature: "c2ln"}, nil
}

func (s *stubBroker) EncryptMessage(ctx context.Context, input services.EncryptMessageInput) (*models.MessageEncryption, error) {
	return &models.MessageEncryption{Ciphertext: "Y2lwaGVy"}, nil
}

func (s *stubBroker) DecryptMessage(ctx context.Context, input services.DecryptMessageInput) (*models.MessageDecryption, error) {
	return &models.MessageDecryption{Plaintext: "cGxhaW4="}, nil
}

func setupEventMiddleware(t *testing.T) (services.BrokerService, *capturingPublisher) {
	t.Helper()

	pub := newCapturingPublisher()
	eventPublisher := &CloudEventPublisher{
		Publisher: pub,
		ServiceID: models.KeyBrokerServiceName,
		Logger:    helpers.SetupLogger(config.None, "test", "eventpub"),
	}

	svc := NewBrokerEventBusPublisher(eventPublisher)(&stubBroker{})
	return svc, pub
}

func TestPublishesEventOnGenerateKey(t *testing.T) {
	svc, pub := setupEventMiddleware(t)

	_, err := svc.GenerateKey(context.Background(), services.GenerateKeyInput{Algorithm: "RSA", Size: 2048})
	require.NoError(t, err)

	published := pub.published(string(models.EventCreateKeyHandleKey))
	require.Len(t, published, 1)

	var event cloudevents.Event
	require.NoError(t, event.UnmarshalJSON(published[0].Payload))

	assert.Equal(t, string(models.EventCreateKeyHandleKey), event.Type())
	assert.Contains(t, event.Source(), models.KeyBrokerSource)
	assert.Equal(t, "handle/handle-1", event.Subject())

	handle, err := helpers.GetEventBody[models.KeyHandle](&event)
	require.NoError(t, err)
	assert.Equal(t, "handle-1", handle.ID)
}

func TestPublishesEventOnDestroyAndSign(t *testing.T) {
	svc, pub := setupEventMiddleware(t)
	ctx := context.Background()

	_, err := svc.DestroyHandle(ctx, services.DestroyHandleInput{HandleID: "handle-9"})
	require.NoError(t, err)

	_, err = svc.SignMessage(ctx, services.SignMessageInput{HandleID: "handle-9"})
	require.NoError(t, err)

	destroyEvents := pub.published(string(models.EventDestroyKeyHandleKey))
	require.Len(t, destroyEvents, 1)

	signEvents := pub.published(string(models.EventSignatureSignKey))
	require.Len(t, signEvents, 1)

	var event cloudevents.Event
	require.NoError(t, event.UnmarshalJSON(destroyEvents[0].Payload))
	assert.Equal(t, "handle/handle-9", event.Subject())
}

func TestPublishesEventOnEncryptAndDecrypt(t *testing.T) {
	svc, pub := setupEventMiddleware(t)
	ctx := context.Background()

	_, err := svc.EncryptMessage(ctx, services.EncryptMessageInput{HandleID: "handle-3"})
	require.NoError(t, err)

	_, err = svc.DecryptMessage(ctx, services.DecryptMessageInput{HandleID: "handle-3"})
	require.NoError(t, err)

	encryptEvents := pub.published(string(models.EventEncryptKey))
	require.Len(t, encryptEvents, 1)

	decryptEvents := pub.published(string(models.EventDecryptKey))
	require.Len(t, decryptEvents, 1)

	var event cloudevents.Event
	require.NoError(t, event.UnmarshalJSON(decryptEvents[0].Payload))
	assert.Equal(t, "handle/handle-3", event.Subject())

	// decrypt events reference the handle, never the plaintext
	ref, err := helpers.GetEventBody[models.KeyHandleRef](&event)
	require.NoError(t, err)
	assert.Equal(t, "handle-3", ref.HandleID)
	assert.NotContains(t, string(decryptEvents[0].Payload), "cGxhaW4=")
}

func TestNoEventOnFailure(t *testing.T) {
	pub := newCapturingPublisher()
	eventPublisher := &CloudEventPublisher{
		Publisher: pub,
		ServiceID: models.KeyBrokerServiceName,
		Logger:    helpers.SetupLogger(config.None, "test", "eventpub"),
	}

	svc := NewBrokerEventBusPublisher(eventPublisher)(&stubBroker{
		generateErr: errors.New("boom"),
	})

	_, err := svc.GenerateKey(context.Background(), services.GenerateKeyInput{Algorithm: "RSA", Size: 2048})
	require.Error(t, err)

	assert.Empty(t, pub.published(string(models.EventCreateKeyHandleKey)))
}
