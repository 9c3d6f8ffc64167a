package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
)

type instrumentedBroker struct {
	requestCount   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	next           services.BrokerService
}

func NewBrokerInstrumentingMiddleware(registry prometheus.Registerer) services.BrokerMiddleware {
	requestCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keybroker",
		Subsystem: "broker",
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"operation", "success"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "keybroker",
		Subsystem: "broker",
		Name:      "request_duration_seconds",
		Help:      "Total duration of requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "success"})

	registry.MustRegister(requestCount, requestLatency)

	return func(next services.BrokerService) services.BrokerService {
		return &instrumentedBroker{
			requestCount:   requestCount,
			requestLatency: requestLatency,
			next:           next,
		}
	}
}

func (mw *instrumentedBroker) observe(operation string, err error, begin time.Time) {
	lvs := []string{operation, fmt.Sprint(err == nil)}
	mw.requestCount.WithLabelValues(lvs...).Add(1)
	mw.requestLatency.WithLabelValues(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw *instrumentedBroker) GetProviders(ctx context.Context) (providers []*models.CryptoProvider, err error) {
	defer func(begin time.Time) {
		mw.observe("GetProviders", err, begin)
	}(time.Now())

	return mw.next.GetProviders(ctx)
}

func (mw *instrumentedBroker) GetHandles(ctx context.Context, input services.GetHandlesInput) (err error) {
	defer func(begin time.Time) {
		mw.observe("GetHandles", err, begin)
	}(time.Now())

	return mw.next.GetHandles(ctx, input)
}

func (mw *instrumentedBroker) GetHandleByID(ctx context.Context, input services.GetHandleByIDInput) (handle *models.KeyHandle, err error) {
	defer func(begin time.Time) {
		mw.observe("GetHandleByID", err, begin)
	}(time.Now())

	return mw.next.GetHandleByID(ctx, input)
}

func (mw *instrumentedBroker) GenerateKey(ctx context.Context, input services.GenerateKeyInput) (handle *models.KeyHandle, err error) {
	defer func(begin time.Time) {
		mw.observe("GenerateKey", err, begin)
	}(time.Now())

	return mw.next.GenerateKey(ctx, input)
}

func (mw *instrumentedBroker) ImportKey(ctx context.Context, input services.ImportKeyInput) (handle *models.KeyHandle, err error) {
	defer func(begin time.Time) {
		mw.observe("ImportKey", err, begin)
	}(time.Now())

	return mw.next.ImportKey(ctx, input)
}

func (mw *instrumentedBroker) DestroyHandle(ctx context.Context, input services.DestroyHandleInput) (handle *models.KeyHandle, err error) {
	defer func(begin time.Time) {
		mw.observe("DestroyHandle", err, begin)
	}(time.Now())

	return mw.next.DestroyHandle(ctx, input)
}

func (mw *instrumentedBroker) SignMessage(ctx context.Context, input services.SignMessageInput) (signature *models.MessageSignature, err error) {
	defer func(begin time.Time) {
		mw.observe("SignMessage", err, begin)
	}(time.Now())

	return mw.next.SignMessage(ctx, input)
}

func (mw *instrumentedBroker) VerifySignature(ctx context.Context, input services.VerifySignatureInput) (validation *models.MessageValidation, err error) {
	defer func(begin time.Time) {
		mw.observe("VerifySignature", err, begin)
	}(time.Now())

	return mw.next.VerifySignature(ctx, input)
}

func (mw *instrumentedBroker) EncryptMessage(ctx context.Context, input services.EncryptMessageInput) (encryption *models.MessageEncryption, err error) {
	defer func(begin time.Time) {
		mw.observe("EncryptMessage", err, begin)
	}(time.Now())

	return mw.next.EncryptMessage(ctx, input)
}

func (mw *instrumentedBroker) DecryptMessage(ctx context.Context, input services.DecryptMessageInput) (decryption *models.MessageDecryption, err error) {
	defer func(begin time.Time) {
		mw.observe("DecryptMessage", err, begin)
	}(time.Now())

	return mw.next.DecryptMessage(ctx, input)
}

func (mw *instrumentedBroker) ExportPublicKey(ctx context.Context, input services.ExportPublicKeyInput) (export *models.PublicKeyExport, err error) {
	defer func(begin time.Time) {
		mw.observe("ExportPublicKey", err, begin)
	}(time.Now())

	return mw.next.ExportPublicKey(ctx, input)
}
