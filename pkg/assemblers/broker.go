package assemblers

import (
	"fmt"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/errs"
	"github.com/keybrokerhq/keybroker/pkg/eventbus"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/jobs"
	"github.com/keybrokerhq/keybroker/pkg/middlewares/eventpub"
	"github.com/keybrokerhq/keybroker/pkg/middlewares/metrics"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	"github.com/keybrokerhq/keybroker/pkg/providers/filesystem"
	"github.com/keybrokerhq/keybroker/pkg/providers/pkcs11"
	"github.com/keybrokerhq/keybroker/pkg/providers/software"
	"github.com/keybrokerhq/keybroker/pkg/providers/vaultkv2"
	"github.com/keybrokerhq/keybroker/pkg/routes"
	"github.com/keybrokerhq/keybroker/pkg/services"
	"github.com/keybrokerhq/keybroker/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func RegisterAllProviders() {
	software.Register()
	filesystem.Register()
	vaultkv2.Register()
	pkcs11.Register()
}

func AssembleBrokerServiceWithHTTPServer(conf config.KeyBrokerConfig, serviceInfo models.APIServiceInfo) (*services.BrokerService, int, error) {
	brokerService, err := AssembleBrokerService(conf)
	if err != nil {
		return nil, -1, fmt.Errorf("could not assemble Broker Service. Exiting: %s", err)
	}

	lHttp := helpers.SetupLogger(conf.Server.LogLevel, models.KeyBrokerServiceName, "HTTP Server")

	httpEngine := routes.NewGinEngine(lHttp)
	httpGrp := httpEngine.Group("/")
	routes.NewBrokerHTTPLayer(httpGrp, *brokerService)
	port, err := routes.RunHttpRouter(lHttp, httpEngine, conf.Server, serviceInfo)
	if err != nil {
		return nil, -1, fmt.Errorf("could not run Broker Service http server: %s", err)
	}

	return brokerService, port, nil
}

func AssembleBrokerService(conf config.KeyBrokerConfig) (*services.BrokerService, error) {
	RegisterAllProviders()

	lSvc := helpers.SetupLogger(conf.Logs.Level, models.KeyBrokerServiceName, "Service")
	lMessage := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, models.KeyBrokerServiceName, "Event Bus")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, models.KeyBrokerServiceName, "Storage")
	lProviders := helpers.SetupLogger(conf.CryptoProviders.LogLevel, models.KeyBrokerServiceName, "Crypto Providers")

	handlesStorage, err := createHandlesStorageInstance(lStorage, conf.Storage)
	if err != nil {
		return nil, fmt.Errorf("could not create handles storage instance: %s", err)
	}

	cryptoProviders, err := createCryptoProviders(lProviders, conf.CryptoProviders)
	if err != nil {
		return nil, fmt.Errorf("could not create crypto providers: %s", err)
	}

	for providerID, instance := range cryptoProviders {
		logEntry := log.NewEntry(log.StandardLogger())
		if instance.Default {
			logEntry = log.WithField("subsystem-provider", "DEFAULT PROVIDER")
		}

		logEntry.Infof("loaded %s provider with id %s", instance.Service.GetProviderInfo().Type, providerID)
	}

	svc, err := services.NewBrokerService(services.BrokerServiceBuilder{
		Logger:          lSvc,
		CryptoProviders: cryptoProviders,
		HandlesStorage:  handlesStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Broker service: %v", err)
	}

	brokerSvc := svc.(*services.BrokerServiceBackend)

	svc = metrics.NewBrokerInstrumentingMiddleware(prometheus.DefaultRegisterer)(svc)
	brokerSvc.SetService(svc)

	if conf.PublisherEventBus.Enabled {
		log.Infof("Event Bus is enabled")
		engine, err := eventbus.NewEventBusEngine(conf.PublisherEventBus, models.KeyBrokerServiceName, lMessage)
		if err != nil {
			return nil, fmt.Errorf("could not create Event Bus engine: %s", err)
		}

		pub, err := engine.Publisher()
		if err != nil {
			return nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
		}

		eventPublisher := &eventpub.CloudEventPublisher{
			Publisher: pub,
			ServiceID: models.KeyBrokerServiceName,
			Logger:    lMessage,
		}

		svc = eventpub.NewBrokerEventBusPublisher(eventPublisher)(svc)
		brokerSvc.SetService(svc)
	}

	if conf.Reconciliation.Enabled {
		lRecon := helpers.SetupLogger(conf.Reconciliation.LogLevel, models.KeyBrokerServiceName, "Reconciler")
		reconciler := jobs.NewHandleReconcilerJob(svc, cryptoProviders, lRecon)
		scheduler := jobs.NewJobScheduler(lRecon, conf.Reconciliation.Frequency, reconciler)
		scheduler.Start()
	}

	return &svc, nil
}

func createHandlesStorageInstance(logger *log.Entry, conf config.Storage) (storage.HandlesRepo, error) {
	var db *gorm.DB
	var err error

	switch conf.Provider {
	case config.Postgres:
		db, err = storage.CreatePostgresDBConnection(logger, conf)
	case config.SQLite:
		db, err = storage.CreateSQLiteDBConnection(logger, conf)
	default:
		return nil, fmt.Errorf("%w: unsupported storage provider: %s", errs.ErrConfiguration, conf.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s storage: %s", conf.Provider, err)
	}

	return storage.NewGormHandlesRepo(logger, db)
}

func createCryptoProviders(logger *log.Entry, conf config.CryptoProviders) (map[string]*services.ProviderInstance, error) {
	instances := map[string]*services.ProviderInstance{}

	for _, providerConf := range conf.Providers {
		if providerConf.ID == "" {
			return nil, fmt.Errorf("%w: crypto provider with empty ID", errs.ErrConfiguration)
		}

		if _, ok := instances[providerConf.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate crypto provider ID %s", errs.ErrConfiguration, providerConf.ID)
		}

		builder := providers.GetProviderBuilder(providerConf.Type)
		if builder == nil {
			return nil, fmt.Errorf("%w: no provider of type %s available", errs.ErrConfiguration, providerConf.Type)
		}

		lProvider := logger.WithField("subsystem-provider", providerConf.ID)
		provider, err := builder(lProvider, providerConf)
		if err != nil {
			return nil, fmt.Errorf("could not build %s provider %s: %s", providerConf.Type, providerConf.ID, err)
		}

		instances[providerConf.ID] = &services.ProviderInstance{
			Default:          providerConf.ID == conf.DefaultProvider,
			OperationTimeout: providerConf.OperationTimeout,
			Service:          provider,
		}
	}

	return instances, nil
}
