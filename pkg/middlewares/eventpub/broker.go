package eventpub

import (
	"context"
	"fmt"

	"github.com/keybrokerhq/keybroker"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/services"
)

type BrokerEventPublisher struct {
	Next       services.BrokerService
	eventMWPub ICloudEventPublisher
}

func NewBrokerEventBusPublisher(eventMWPub ICloudEventPublisher) services.BrokerMiddleware {
	return func(next services.BrokerService) services.BrokerService {
		return &BrokerEventPublisher{
			Next:       next,
			eventMWPub: NewEventPublisherWithSourceMiddleware(eventMWPub, models.KeyBrokerSource),
		}
	}
}

func (mw BrokerEventPublisher) GetProviders(ctx context.Context) ([]*models.CryptoProvider, error) {
	return mw.Next.GetProviders(ctx)
}

func (mw BrokerEventPublisher) GetHandles(ctx context.Context, input services.GetHandlesInput) error {
	return mw.Next.GetHandles(ctx, input)
}

func (mw BrokerEventPublisher) GetHandleByID(ctx context.Context, input services.GetHandleByIDInput) (*models.KeyHandle, error) {
	return mw.Next.GetHandleByID(ctx, input)
}

func (mw BrokerEventPublisher) GenerateKey(ctx context.Context, input services.GenerateKeyInput) (output *models.KeyHandle, err error) {
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventType, models.EventCreateKeyHandleKey)
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, "handle/unknown")

	defer func() {
		if err == nil {
			ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, fmt.Sprintf("handle/%s", output.ID))
			mw.eventMWPub.PublishCloudEvent(ctx, output)
		}
	}()

	return mw.Next.GenerateKey(ctx, input)
}

func (mw BrokerEventPublisher) ImportKey(ctx context.Context, input services.ImportKeyInput) (output *models.KeyHandle, err error) {
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventType, models.EventImportKeyHandleKey)
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, "handle/unknown")

	defer func() {
		if err == nil {
			ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, fmt.Sprintf("handle/%s", output.ID))
			mw.eventMWPub.PublishCloudEvent(ctx, output)
		}
	}()

	return mw.Next.ImportKey(ctx, input)
}

func (mw BrokerEventPublisher) DestroyHandle(ctx context.Context, input services.DestroyHandleInput) (output *models.KeyHandle, err error) {
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventType, models.EventDestroyKeyHandleKey)
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, fmt.Sprintf("handle/%s", input.HandleID))

	defer func() {
		if err == nil {
			mw.eventMWPub.PublishCloudEvent(ctx, output)
		}
	}()

	return mw.Next.DestroyHandle(ctx, input)
}

func (mw BrokerEventPublisher) SignMessage(ctx context.Context, input services.SignMessageInput) (output *models.MessageSignature, err error) {
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventType, models.EventSignatureSignKey)
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, fmt.Sprintf("handle/%s", input.HandleID))

	defer func() {
		if err == nil {
			mw.eventMWPub.PublishCloudEvent(ctx, output)
		}
	}()

	return mw.Next.SignMessage(ctx, input)
}

func (mw BrokerEventPublisher) VerifySignature(ctx context.Context, input services.VerifySignatureInput) (output *models.MessageValidation, err error) {
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventType, models.EventSignatureVerifyKey)
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, fmt.Sprintf("handle/%s", input.HandleID))

	defer func() {
		if err == nil {
			mw.eventMWPub.PublishCloudEvent(ctx, output)
		}
	}()

	return mw.Next.VerifySignature(ctx, input)
}

func (mw BrokerEventPublisher) EncryptMessage(ctx context.Context, input services.EncryptMessageInput) (output *models.MessageEncryption, err error) {
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventType, models.EventEncryptKey)
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, fmt.Sprintf("handle/%s", input.HandleID))

	defer func() {
		if err == nil {
			mw.eventMWPub.PublishCloudEvent(ctx, output)
		}
	}()

	return mw.Next.EncryptMessage(ctx, input)
}

func (mw BrokerEventPublisher) DecryptMessage(ctx context.Context, input services.DecryptMessageInput) (output *models.MessageDecryption, err error) {
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventType, models.EventDecryptKey)
	ctx = context.WithValue(ctx, keybroker.ContextKeyEventSubject, fmt.Sprintf("handle/%s", input.HandleID))

	defer func() {
		if err == nil {
			// the event carries the handle reference only, decrypted
			// material never goes on the bus
			mw.eventMWPub.PublishCloudEvent(ctx, &models.KeyHandleRef{HandleID: input.HandleID})
		}
	}()

	return mw.Next.DecryptMessage(ctx, input)
}

func (mw BrokerEventPublisher) ExportPublicKey(ctx context.Context, input services.ExportPublicKeyInput) (*models.PublicKeyExport, error) {
	return mw.Next.ExportPublicKey(ctx, input)
}
