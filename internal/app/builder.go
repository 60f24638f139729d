package app

import (
	"fmt"
	"time"

	"optflow/internal/broker"
	"optflow/internal/broker/paper"
	"optflow/internal/config"
	binancegw "optflow/internal/gateway/binance"
	tradiergw "optflow/internal/gateway/tradier"
	"optflow/internal/history"
	"optflow/internal/logger"
	"optflow/internal/market"
	"optflow/internal/orchestrator"
	"optflow/internal/playbook"
	"optflow/internal/playstore"
	"optflow/internal/scheduler"
	"optflow/internal/strategy"
	monitorhttp "optflow/internal/transport/http"
)

func build(cfg *config.Config) (*App, error) {
	store, err := playstore.New(playstore.AccountContext{
		Account: cfg.Account.Name,
		DataDir: cfg.Account.DataDir,
	})
	if err != nil {
		return nil, err
	}
	// Self-heal before anything reads play state; a duplicate id here is
	// fatal by design and needs a human.
	if err := store.Recover(); err != nil {
		return nil, fmt.Errorf("play store recovery failed: %w", err)
	}

	books, err := playbook.Load(cfg.Playbooks.Dir)
	if err != nil {
		return nil, err
	}

	gateway, err := buildMarketGateway(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := buildBroker(cfg)
	if err != nil {
		return nil, err
	}

	engines, err := buildStrategies(cfg, books)
	if err != nil {
		return nil, err
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no strategies enabled; check the strategies config section")
	}

	var recorder orchestrator.Recorder
	if cfg.History.Enabled {
		hs, err := history.New(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		recorder = hs
		logger.Infof("app: history recording to %s", cfg.History.Path)
	}

	orch := orchestrator.New(orchestrator.Options{
		Parallel:     cfg.Orch.Parallel(),
		Workers:      cfg.Orch.Workers,
		DryRun:       cfg.Orch.DryRun,
		MaxRetries:   cfg.Orch.MaxRetries,
		OrderTimeout: cfg.Orch.OrderTimeout(),
	}, engines, strategy.Deps{Market: gateway, Broker: gw}, store, recorder)

	httpSrv, err := monitorhttp.NewServer(monitorhttp.Config{
		Addr:  cfg.App.HTTPAddr,
		Orch:  orch,
		Store: store,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Orch.DryRun {
		logger.Warnf("app: DRY-RUN mode — decisions are evaluated and logged, no orders and no state changes")
	}

	return &App{
		cfg:   cfg,
		orch:  orch,
		sched: scheduler.New(cfg.Orch.PollInterval()),
		http:  httpSrv,
		books: books,
		store: store,
	}, nil
}

func buildMarketGateway(cfg *config.Config) (*market.Gateway, error) {
	gateway := market.NewGateway()
	limits := cfg.Providers.Limits
	pcfg := market.ProviderConfig{
		MaxRequests:      limits.MaxRequests,
		Window:           limits.Window(),
		BreakerThreshold: limits.BreakerThreshold,
		BreakerCooldown:  limits.BreakerCooldown(),
	}
	for _, name := range cfg.Providers.Order {
		switch name {
		case "tradier":
			gateway.Register(tradiergw.New(tradiergw.Config{
				BaseURL:     cfg.Providers.Tradier.BaseURL,
				Token:       cfg.Providers.Tradier.Token,
				HTTPTimeout: time.Duration(cfg.Providers.Tradier.TimeoutSeconds) * time.Second,
			}), pcfg)
		case "binance":
			gateway.Register(binancegw.New(binancegw.Config{
				RESTBaseURL: cfg.Providers.Binance.RESTBaseURL,
				HTTPTimeout: time.Duration(cfg.Providers.Binance.TimeoutSeconds) * time.Second,
			}), pcfg)
		default:
			return nil, fmt.Errorf("unknown provider %q in providers.order", name)
		}
	}
	logger.Infof("app: market data fallback order: %v", gateway.Providers())
	return gateway, nil
}

func buildBroker(cfg *config.Config) (broker.Gateway, error) {
	switch cfg.Broker.Kind {
	case "paper":
		b := paper.New()
		b.FillAfterPolls = cfg.Broker.PaperFillAfterPolls
		logger.Infof("app: using paper broker (fill_after_polls=%d)", b.FillAfterPolls)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}
}

func buildStrategies(cfg *config.Config, books *playbook.Registry) ([]strategy.Engine, error) {
	var engines []strategy.Engine
	for name, sc := range cfg.Strategy {
		if !sc.Enabled {
			logger.Infof("app: strategy %s disabled", name)
			continue
		}
		eng, err := strategy.Build(name, strategy.Settings{
			Priority: sc.Priority,
			Params:   sc.Params,
			Books:    books,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("app: strategy %s enabled (priority=%d)", name, sc.Priority)
		engines = append(engines, eng)
	}
	return engines, nil
}
