package jobs

import (
	"time"

	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/services"
	"github.com/sirupsen/logrus"
)

// HandleReconciler periodically cross checks broker handles against the
// key IDs each provider actually holds. Drift is reported, never
// repaired automatically.
type HandleReconciler struct {
	logger    *logrus.Entry
	service   services.BrokerService
	providers map[string]*services.ProviderInstance
}

func NewHandleReconcilerJob(service services.BrokerService, providers map[string]*services.ProviderInstance, logger *logrus.Entry) *HandleReconciler {
	return &HandleReconciler{
		service:   service,
		providers: providers,
		logger:    logger,
	}
}

func (svc *HandleReconciler) Run() {
	ctx := helpers.InitContext()
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	now := time.Now()
	lFunc.Info("starting periodic handle reconciliation")

	handlesByProvider := map[string]map[string]models.KeyHandle{}
	err := svc.service.GetHandles(ctx, services.GetHandlesInput{
		ApplyFunc: func(handle models.KeyHandle) {
			if handle.State != models.HandleActive {
				return
			}

			if _, ok := handlesByProvider[handle.ProviderID]; !ok {
				handlesByProvider[handle.ProviderID] = map[string]models.KeyHandle{}
			}
			handlesByProvider[handle.ProviderID][handle.ProviderKeyID] = handle
		},
	})
	if err != nil {
		lFunc.Errorf("could not list handles: %s", err)
		return
	}

	for providerID, instance := range svc.providers {
		keyIDs, err := instance.Service.ListKeyIDs()
		if err != nil {
			lFunc.Warnf("could not list keys held by provider %s: %s", providerID, err)
			continue
		}

		providerKeys := map[string]struct{}{}
		for _, keyID := range keyIDs {
			providerKeys[keyID] = struct{}{}
		}

		handles := handlesByProvider[providerID]

		for keyID := range providerKeys {
			if _, ok := handles[keyID]; !ok {
				lFunc.Warnf("provider %s holds key %s with no active handle", providerID, keyID)
			}
		}

		for keyID, handle := range handles {
			if _, ok := providerKeys[keyID]; !ok {
				lFunc.Warnf("handle %s references key %s no longer held by provider %s", handle.ID, keyID, providerID)
			}
		}
	}

	end := time.Now()
	lFunc.Infof("ending reconciliation. Took %v", end.Sub(now))
}
