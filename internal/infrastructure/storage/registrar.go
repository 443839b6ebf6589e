package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/cloud-storage-provider/configs"
	"github.com/avatarctic/cloud-storage-provider/internal/application/services"
	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	domain "github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
	infrahealth "github.com/avatarctic/cloud-storage-provider/internal/infrastructure/health"
	"github.com/avatarctic/cloud-storage-provider/internal/infrastructure/repositories"
)

// ProviderName is the provider segment of storage health check names.
const ProviderName = "azure"

// Tags applied to every storage health check.
var defaultCheckTags = []string{"storage", ProviderName, "ready"}

// ClientFactory builds the client for one configured instance.
type ClientFactory func(settings *config.StorageInstanceSettings, logger *logrus.Logger) (ports.CloudStorageClient, error)

// RegistrarOption customises a Registrar.
type RegistrarOption func(*Registrar)

// WithMetadataCache decorates every client with a blob metadata cache.
func WithMetadataCache(cache ports.Cache, ttl time.Duration) RegistrarOption {
	return func(r *Registrar) {
		r.cache = cache
		r.metadataTTL = ttl
	}
}

// WithProduction hides account and container names from health descriptions.
func WithProduction(isProduction bool) RegistrarOption {
	return func(r *Registrar) { r.isProduction = isProduction }
}

// WithEvaluatorOptions passes options to every health evaluator the registrar creates.
func WithEvaluatorOptions(opts ...services.EvaluatorOption) RegistrarOption {
	return func(r *Registrar) { r.evaluatorOpts = append(r.evaluatorOpts, opts...) }
}

// Registrar turns storage settings into keyed clients and health check registrations.
type Registrar struct {
	newClient     ClientFactory
	healthService ports.HealthService
	cache         ports.Cache
	metadataTTL   time.Duration
	isProduction  bool
	evaluatorOpts []services.EvaluatorOption
	logger        *logrus.Logger
}

func NewRegistrar(newClient ClientFactory, healthService ports.HealthService, logger *logrus.Logger, opts ...RegistrarOption) *Registrar {
	r := &Registrar{newClient: newClient, healthService: healthService, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckName is the health check name registered for an instance key.
func CheckName(key string) string {
	return fmt.Sprintf("storage:%s:%s", ProviderName, key)
}

// EvaluatorKey identifies the probe target. Instances pointing at the same account and
// container share one evaluator, so they share one cached result and one in-flight probe.
func EvaluatorKey(account, containerName string) string {
	key := "storage_health:" + strings.ToLower(account)
	if containerName != "" {
		key += ":" + containerName
	}
	return key
}

// Register builds a client and a health check for every configured instance.
// Instances are processed in key order.
func (r *Registrar) Register(settings *config.StorageSettings) (*Registry, error) {
	registry := &Registry{clients: map[string]ports.CloudStorageClient{}}
	evaluators := map[string]*services.CachedEvaluator{}

	keys := make([]string, 0, len(settings.Instances))
	for key := range settings.Instances {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		inst := settings.Instances[key]
		client, err := r.newClient(inst, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to register storage instance %q: %w", key, err)
		}

		failureStatus, err := health.ParseStatus(inst.Health.FailureStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to register storage instance %q: %w", key, err)
		}

		evalKey := EvaluatorKey(client.AccountName(), inst.Health.ContainerName)
		evaluator, shared := evaluators[evalKey]
		if !shared {
			probe := infrahealth.NewBlobStorageProbe(client, inst.Health.ContainerName, r.isProduction)
			evaluator, err = services.NewCachedEvaluator(evalKey, probe, services.EvaluatorConfig{
				FreshDuration: inst.Health.CachedResultTimeout,
			}, r.logger, r.evaluatorOpts...)
			if err != nil {
				return nil, fmt.Errorf("failed to register storage instance %q: %w", key, err)
			}
			evaluators[evalKey] = evaluator
		} else if evaluator.FreshDuration() != inst.Health.CachedResultTimeout && r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"instance":   key,
				"evaluator":  evalKey,
				"configured": inst.Health.CachedResultTimeout.String(),
				"effective":  evaluator.FreshDuration().String(),
			}).Warn("Storage instance shares a health evaluator with a different cached result timeout; the first registration's value applies")
		}

		reg := health.Registration{
			Name:          CheckName(key),
			FailureStatus: failureStatus,
			Timeout:       inst.Health.Timeout,
			Tags:          append(append([]string{}, defaultCheckTags...), inst.Health.Tags...),
		}
		if err := r.healthService.Register(reg, evaluator); err != nil {
			return nil, fmt.Errorf("failed to register storage instance %q: %w", key, err)
		}

		if r.cache != nil && r.metadataTTL > 0 {
			client = repositories.NewCachingStorageClient(client, r.cache, r.metadataTTL)
		}
		registry.clients[key] = client
		registry.checks = append(registry.checks, reg)

		if r.logger == nil {
			continue
		}
		r.logger.WithFields(logrus.Fields{
			"instance":       key,
			"account":        client.AccountName(),
			"check":          reg.Name,
			"evaluator":      evalKey,
			"shared":         shared,
			"cache_enabled":  evaluator.CachingEnabled(),
			"metadata_cache": r.cache != nil && r.metadataTTL > 0,
		}).Info("Registered storage instance")
	}
	return registry, nil
}

// Registry holds the clients created by a Registrar.
type Registry struct {
	clients map[string]ports.CloudStorageClient
	checks  []health.Registration
}

var _ ports.StorageProviders = (*Registry)(nil)

func (r *Registry) Client(key string) (ports.CloudStorageClient, error) {
	c, ok := r.clients[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, key)
	}
	return c, nil
}

// Default returns the client registered under config.DefaultInstanceKey.
func (r *Registry) Default() (ports.CloudStorageClient, error) {
	return r.Client(config.DefaultInstanceKey)
}

// Keys returns the instance keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Checks returns the health registrations created for the instances.
func (r *Registry) Checks() []health.Registration {
	return append([]health.Registration(nil), r.checks...)
}
