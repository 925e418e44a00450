package gocommand

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-tiktokshop/command"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/query"
)

// ValidateMessageContract enforces Type() plus the optional Validate().
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(gocmd.Message)
	if !ok {
		return core.NewError(core.ErrorBadInput, "gocommand: message must implement Type() string", nil)
	}
	if strings.TrimSpace(m.Type()) == "" {
		return core.NewError(core.ErrorBadInput, "gocommand: message type is required", nil)
	}
	return nil
}

type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) Register(handler any) error {
	if a == nil || a.registry == nil {
		return notConfigured()
	}
	return a.registry.RegisterCommand(handler)
}

// AddQueueResolver mirrors registered commands into a go-job queue
// registry so they can run from a worker.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return notConfigured()
	}
	if queueRegistry == nil {
		return core.NewError(core.ErrorConfigInvalid, "gocommand: queue registry is required", nil)
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return notConfigured()
	}
	return a.registry.Initialize()
}

// Dependencies are the services behind the bound handlers. Nil readers
// skip their query.
type Dependencies struct {
	Service     command.Service
	Credentials query.CredentialReader
	Deliveries  query.WebhookDeliveryReader
}

// Bindings holds the dispatcher subscriptions created by Bind.
type Bindings struct {
	subscriptions []commanddispatcher.Subscription
}

func (b *Bindings) Unsubscribe() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// Bind registers and subscribes every tiktokshop command and query. On
// error the subscriptions made so far are removed.
func Bind(adapter *RegistryAdapter, deps Dependencies, runnerOpts ...runner.Option) (*Bindings, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, notConfigured()
	}
	if deps.Service == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "gocommand: service is required", nil)
	}
	bindings := &Bindings{}
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, command.NewAuthorizeCommand(deps.Service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, command.NewCompleteCallbackCommand(deps.Service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, command.NewRefreshCommand(deps.Service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, command.NewAcceptWebhookCommand(deps.Service), runnerOpts...)
		},
	}
	if deps.Credentials != nil {
		steps = append(steps, func() (commanddispatcher.Subscription, error) {
			return registerQuery(adapter, query.NewGetConnectionQuery(deps.Credentials), runnerOpts...)
		})
	}
	if deps.Deliveries != nil {
		steps = append(steps, func() (commanddispatcher.Subscription, error) {
			return registerQuery(adapter, query.NewGetWebhookDeliveryQuery(deps.Deliveries), runnerOpts...)
		})
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			bindings.Unsubscribe()
			return nil, err
		}
		bindings.subscriptions = append(bindings.subscriptions, subscription)
	}
	return bindings, nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

// Execute dispatches msg and returns the result the command stored.
func Execute[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	collector := gocmd.NewResult[R]()
	if err := Dispatch(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, ok := collector.Load()
	if !ok {
		return zero, core.NewError(core.ErrorInternal, "gocommand: command stored no result", nil)
	}
	return out, nil
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

func registerCommand[T any](
	adapter *RegistryAdapter,
	cmd gocmd.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.Register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T any, R any](
	adapter *RegistryAdapter,
	qry gocmd.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.Register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func notConfigured() error {
	return core.NewError(core.ErrorInternal, "gocommand: registry is not configured", nil)
}
