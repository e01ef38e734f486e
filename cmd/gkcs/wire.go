package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"codnect.io/chrono"
	"github.com/GlintPay/gkcs/cache"
	"github.com/GlintPay/gkcs/catalog"
	"github.com/GlintPay/gkcs/config"
	"github.com/GlintPay/gkcs/environment"
	"github.com/GlintPay/gkcs/filetypes"
	"github.com/GlintPay/gkcs/kube"
	"github.com/GlintPay/gkcs/mounted"
	"github.com/GlintPay/gkcs/propertysource"
	"github.com/GlintPay/gkcs/reconciler"
	k8sresolver "github.com/GlintPay/gkcs/resolver/k8s"
	"github.com/GlintPay/gkcs/resource"
	"github.com/GlintPay/gkcs/selector"
	"github.com/GlintPay/gkcs/services"
	"github.com/GlintPay/gkcs/sops"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

type mountedGroup struct {
	volumes []*mounted.Volume
	period  time.Duration
}

type application struct {
	informers   []*cache.Informer
	reconcilers []*reconciler.Reconciler
	mounted     []mountedGroup
	catalog     *catalog.Cache
	env         *environment.Environment
	discovery   *services.Client
	ready       atomic.Bool
}

func (app *application) started() bool {
	return app.ready.Load()
}

// watcher builds one informer per watched namespace of a kind, all feeding one composite
type watcher struct {
	client           kubernetes.Interface
	selectors        *selector.Resolver
	catalog          *catalog.Cache
	types            config.CatalogConfig
	defaultNamespace string
}

func (w watcher) watch(ctx context.Context, kind resource.Kind, namespaces []string, labels map[string]string, podLabels []string) (*cache.IndexerComposite, []*cache.Informer, error) {
	if w.catalog != nil {
		if _, err := resolveKind(ctx, w.catalog, kind, w.types.TypeName(string(kind))); err != nil {
			return nil, nil, err
		}
	}

	labelSelector := w.selectors.Resolve(ctx, labels, podLabels)
	if _, err := selector.Parse(labelSelector); err != nil {
		return nil, nil, fmt.Errorf("invalid selector for %s: %w", kind, err)
	}
	if len(namespaces) == 0 {
		namespaces = []string{w.defaultNamespace}
	}

	composite := cache.NewIndexerComposite(kind)
	informers := make([]*cache.Informer, 0, len(namespaces))
	for _, ns := range namespaces {
		source, err := kube.NewWatchSource(w.client, kind, ns, labelSelector)
		if err != nil {
			return nil, nil, err
		}
		informers = append(informers, cache.NewInformer(source, composite.Partition(ns)))
		log.Info().Str("kind", string(kind)).Str("namespace", ns).Str("selector", labelSelector).Msg("Watching")
	}
	return composite, informers, nil
}

// resolveKind looks up the API resource behind typeName and checks it is the kind being watched
func resolveKind(ctx context.Context, cat *catalog.Cache, kind resource.Kind, typeName string) (catalog.Entry, error) {
	entry, err := cat.Resolve(ctx, typeName)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("cannot watch %s: %w", kind, err)
	}
	if !strings.EqualFold(entry.Kind, string(kind)) {
		return catalog.Entry{}, fmt.Errorf("cannot watch %s: type name %s resolves to %s", kind, typeName, entry.Kind)
	}
	log.Debug().Str("type", typeName).Msgf("%s served as %s", kind, entry)
	return entry, nil
}

func wire(ctx context.Context, cfg config.ApplicationConfiguration) (*application, error) {
	app := &application{}
	ns := cfg.Kubernetes.DefaultNamespace

	var client kubernetes.Interface
	if cfg.Kubernetes.Enabled {
		c, err := kube.NewClientset(cfg.Kubernetes)
		if err != nil {
			return nil, err
		}
		client = c
	}

	if client != nil {
		app.catalog = catalog.NewCache(kube.DiscoveryFetcher{Discovery: client.Discovery()}, catalogOptions(cfg))
	}

	var pods selector.PodLabelsLookup
	if client != nil && envConfig.Hostname != "" {
		pods = kube.PodLabels{Client: client, Namespace: ns, Name: envConfig.Hostname}
	}
	w := watcher{client: client, selectors: selector.NewResolver(pods), catalog: app.catalog, types: cfg.Catalog, defaultNamespace: ns}

	watchSource := func(kind resource.Kind, sc config.SourceConfig) (*cache.IndexerComposite, []*cache.Informer, error) {
		if client == nil || !sc.Enabled {
			return nil, nil, nil
		}
		return w.watch(ctx, kind, sc.Namespaces, sc.Labels, sc.PodLabels)
	}

	configMaps, configMapInformers, err := watchSource(resource.ConfigMapKind, cfg.ConfigMaps)
	if err != nil {
		return nil, err
	}
	secrets, secretInformers, err := watchSource(resource.SecretKind, cfg.Secrets)
	if err != nil {
		return nil, err
	}

	store := propertysource.NewStore()
	registry := filetypes.DefaultRegistry(sops.Decrypter{})
	log.Info().Strs("extensions", registry.Extensions()).Msg("Reading property files")
	transformer := propertysource.NewTransformer(registry, ns)
	if cfg.ConfigMaps.Priority > 0 {
		transformer.Priorities[resource.ConfigMapKind] = cfg.ConfigMaps.Priority
	}
	if cfg.Secrets.Priority > 0 {
		transformer.Priorities[resource.SecretKind] = cfg.Secrets.Priority
	}

	opts := environment.Options{
		Injections:  environment.Injections(cfg.Environment.Injections),
		Templates:   environment.NewTemplates(cfg.Environment.Templates, map[string]any{"Namespace": ns, "PodName": envConfig.Hostname}),
		EnableTrace: cfg.Tracing.Enabled,
	}
	if client != nil {
		var secretLookup, configMapLookup k8sresolver.Lookup
		if secrets != nil {
			secretLookup = secrets
		}
		if configMaps != nil {
			configMapLookup = configMaps
		}
		ttl := time.Duration(cfg.Kubernetes.CacheTTLSeconds) * time.Second
		opts.External = k8sresolver.NewResolver(secretLookup, configMapLookup, kube.NewLiveReader(client, ttl), ns)
	}
	app.env = environment.New(store, opts)

	app.addSource(resource.ConfigMapKind, cfg.ConfigMaps, configMaps, configMapInformers, transformer, store)
	app.addSource(resource.SecretKind, cfg.Secrets, secrets, secretInformers, transformer, store)

	if client != nil && cfg.Discovery.Enabled {
		endpoints, endpointInformers, err := w.watch(ctx, resource.EndpointsKind, cfg.Discovery.Namespaces, cfg.Discovery.Labels, cfg.Discovery.PodLabels)
		if err != nil {
			return nil, err
		}
		svcs, serviceInformers, err := w.watch(ctx, resource.ServiceKind, cfg.Discovery.Namespaces, cfg.Discovery.Labels, cfg.Discovery.PodLabels)
		if err != nil {
			return nil, err
		}
		app.informers = append(app.informers, endpointInformers...)
		app.informers = append(app.informers, serviceInformers...)

		options := services.Options{
			IncludeNotReadyAddresses:    cfg.Discovery.IncludeNotReadyAddresses,
			IncludeExternalNameServices: cfg.Discovery.IncludeExternalNameServices,
			AddLabels:                   cfg.Discovery.AddLabels,
			AddAnnotations:              cfg.Discovery.AddAnnotations,
		}
		strategies := map[services.Mode]services.Strategy{
			services.EndpointsMode: &services.EndpointsResolver{Endpoints: endpoints, Services: svcs, Options: options},
			services.ServiceMode:   &services.ServiceResolver{Services: svcs, Options: options},
		}
		app.discovery = services.NewClient(strategies, services.Mode(cfg.Discovery.Mode), cfg.Discovery.Namespaces, serviceConfigs(cfg.Services))
	}

	return app, nil
}

func (app *application) addSource(kind resource.Kind, sc config.SourceConfig, composite *cache.IndexerComposite, informers []*cache.Informer, transformer *propertysource.Transformer, store *propertysource.Store) {
	app.informers = append(app.informers, informers...)
	if !sc.Enabled {
		return
	}

	var lister reconciler.Lister
	if composite != nil {
		lister = composite
	}
	rec := reconciler.New(kind, reconciler.FilterFrom(sc), transformer, store, app.env, lister)
	app.reconcilers = append(app.reconcilers, rec)

	if sc.WatchEnabled {
		for _, each := range informers {
			each.AddHandler(rec)
		}
	}

	if len(sc.MountedVolumePaths) > 0 {
		group := mountedGroup{period: sc.RefreshRate()}
		for _, path := range sc.MountedVolumePaths {
			group.volumes = append(group.volumes, mounted.NewVolume(path, kind, propertysource.DefaultMountedPriority, transformer, rec))
		}
		app.mounted = append(app.mounted, group)
	}
}

// start waits for the first list of every informer, then opens the reconcilers and loads the
// mounted volumes. It returns once ctx is done.
func (app *application) start(ctx context.Context, cfg config.ApplicationConfiguration) error {
	err := wait.PollUntilContextCancel(ctx, 200*time.Millisecond, true, func(context.Context) (bool, error) {
		for _, each := range app.informers {
			if !each.HasSynced() {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil
	}

	app.logChanges(ctx, cfg.Environment.NotificationBuffer)

	for _, rec := range app.reconcilers {
		rec.Start(ctx)
	}

	for _, group := range app.mounted {
		for _, v := range group.volumes {
			if e := v.Reload(); e != nil {
				log.Error().Err(e).Msgf("Initial load of %s failed", v.Path)
			}
		}
		if e := mounted.Schedule(ctx, group.volumes, group.period); e != nil {
			return e
		}
	}

	if app.catalog != nil && cfg.Catalog.Enabled {
		if e := scheduleCatalogRefresh(ctx, app.catalog, cfg.Catalog.RefreshInterval()); e != nil {
			return e
		}
	}

	app.ready.Store(true)
	log.Info().Int("sources", len(app.env.Sources())).Msg("Configuration reconciled, ready")

	<-ctx.Done()
	return nil
}

// logChanges reports every published change until ctx is done
func (app *application) logChanges(ctx context.Context, buffer int) {
	events, cancel := app.env.Subscribe(buffer)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				log.Info().Strs("keys", ev.Keys).Strs("sources", ev.Sources).Msg("Environment changed")
			}
		}
	}()
}

// scheduleCatalogRefresh keeps the catalogue warm so lookups rarely pay for a discovery fetch
func scheduleCatalogRefresh(ctx context.Context, cat *catalog.Cache, period time.Duration) error {
	if period <= 0 {
		return nil
	}

	scheduler := chrono.NewDefaultTaskScheduler()
	task, err := scheduler.ScheduleAtFixedRate(func(_ context.Context) {
		if _, e := cat.FindAll(ctx); e != nil {
			log.Warn().Err(e).Msg("Catalogue refresh failed, keeping previous entries")
		}
	}, period)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		task.Cancel()
		<-scheduler.Shutdown()
	}()
	return nil
}

func catalogOptions(cfg config.ApplicationConfiguration) catalog.Options {
	opts := catalog.Options{
		Enabled:         cfg.Catalog.Enabled,
		RefreshInterval: cfg.Catalog.RefreshInterval(),
		Timeout:         cfg.Catalog.Timeout(),
		EnableTrace:     cfg.Tracing.Enabled,
	}
	for _, each := range cfg.Catalog.StaticKinds {
		opts.StaticKinds = append(opts.StaticKinds, catalog.Entry{
			Kind:       each.Kind,
			Group:      each.Group,
			Version:    each.Version,
			Resource:   each.Resource,
			Namespaced: each.Namespaced,
		})
	}
	if len(cfg.Catalog.GroupPrefixes) > 0 || len(cfg.Catalog.VersionInfixes) > 0 {
		prefixes := make([]catalog.GroupPrefix, 0, len(cfg.Catalog.GroupPrefixes))
		for _, each := range cfg.Catalog.GroupPrefixes {
			prefixes = append(prefixes, catalog.GroupPrefix{Prefix: each.Prefix, Group: each.Group})
		}
		opts.Decomposer = catalog.NewDecomposer(prefixes, cfg.Catalog.VersionInfixes)
	}
	return opts
}

func serviceConfigs(in []config.ServiceConfig) []services.ServiceConfig {
	out := make([]services.ServiceConfig, 0, len(in))
	for _, each := range in {
		out = append(out, services.ServiceConfig{
			Name:      each.Name,
			Namespace: each.Namespace,
			Port:      each.Port,
			Mode:      services.Mode(each.Mode),
		})
	}
	return out
}
