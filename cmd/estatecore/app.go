package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"estatecore/internal/blob"
	"estatecore/internal/config"
	"estatecore/internal/core"
	"estatecore/internal/infra/blob/s3"
	"estatecore/internal/infra/persistence/memory"
	"estatecore/internal/infra/persistence/postgres"
	"estatecore/internal/infra/persistence/sqlite"
	"estatecore/internal/logging"
	"estatecore/internal/notify"
	"estatecore/internal/payment"
	"estatecore/pkg/domain"
)

// app is the wired service plus everything that must be released afterwards.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	svc      *core.Service
	registry *prometheus.Registry
	closers  []func() error
}

func openApp(ctx context.Context, configDir string) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "estatecore")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.closers = append(a.closers, func() error { _ = logger.Sync(); return nil })

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	blobs, err := blob.Open(ctx, blob.Config{
		Driver: cfg.Blob.Driver,
		FSRoot: cfg.Blob.Root,
		S3: s3.Config{
			Bucket:          cfg.Blob.Bucket,
			Region:          cfg.Blob.Region,
			Endpoint:        cfg.Blob.Endpoint,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretKey,
			PathStyle:       cfg.Blob.PathStyle,
		},
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	notifier, err := a.openNotifier()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	metrics, err := core.NewPrometheusMetrics(a.registry)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.svc = core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithBlobStore(blobs),
		core.WithNotifier(notifier),
	)
	logger.Debug("estatecore ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("blob", string(blobs.Driver())),
		zap.Strings("notify", cfg.Notify.Channels()))
	return a, nil
}

func (a *app) openStore(ctx context.Context) (domain.PersistentStore, error) {
	engine := core.NewDefaultRulesEngine()
	switch a.cfg.Store.Driver {
	case "sqlite":
		st, err := sqlite.NewStore(a.cfg.Store.Path, engine)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	case "postgres":
		st, err := postgres.NewStore(ctx, a.cfg.Store.DSN, engine)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	default:
		return memory.NewStore(engine), nil
	}
}

func (a *app) openNotifier() (core.Notifier, error) {
	n := a.cfg.Notify
	var fan notify.Fanout
	for _, ch := range n.Channels() {
		switch ch {
		case "log":
			fan = append(fan, notify.NewLogNotifier(a.logger))
		case "redis":
			client := redis.NewClient(&redis.Options{Addr: n.RedisAddr})
			a.closers = append(a.closers, client.Close)
			fan = append(fan, notify.NewRedisStreamNotifier(client, n.RedisStream, n.RedisMaxLen))
		case "mqtt":
			client, err := notify.DialMQTT(notify.MQTTConfig{
				Broker:   n.MQTTBroker,
				ClientID: n.MQTTClientID,
				Username: n.MQTTUsername,
				Password: n.MQTTPassword,
			})
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, disconnect(client))
			fan = append(fan, notify.NewMQTTNotifier(client, n.MQTTPrefix, byte(n.MQTTQoS)))
		case "email":
			fan = append(fan, notify.NewEmailNotifier(n.SendGridKey, n.EmailFromName, n.EmailFrom))
		}
	}
	if len(fan) == 0 {
		return nil, nil
	}
	return fan, nil
}

func disconnect(client mqtt.Client) func() error {
	return func() error {
		client.Disconnect(250)
		return nil
	}
}

func (a *app) gateway() *payment.HTTPGateway {
	return payment.NewHTTPGateway(payment.Config{
		BaseURL:  a.cfg.Payment.BaseURL,
		APIKey:   a.cfg.Payment.APIKey,
		Currency: a.cfg.Payment.Currency,
		Timeout:  a.cfg.Payment.Timeout,
	}, a.logger)
}

// writeMetrics prints the operation counters recorded during the command.
func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			label := ""
			for _, lp := range m.GetLabel() {
				label += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s%s %.0f", fam.GetName(), label, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
