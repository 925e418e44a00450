// Package tiktokshop connects many independent TikTok Shop tenants to the
// signed Open API. Manager is the entry point.
package tiktokshop

import (
	"github.com/goliatone/go-tiktokshop/api"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/webhooks"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Credential = core.Credential
type CredentialStore = core.CredentialStore
type AuthStateStore = core.AuthStateStore
type SecretProvider = core.SecretProvider
type MetricsRecorder = core.MetricsRecorder
type WebhookDispatcher = core.WebhookDispatcher
type WebhookEvent = core.WebhookEvent

type Request = core.Request
type Response = core.Response
type CallbackResult = core.CallbackResult
type ShopMetadata = core.ShopMetadata

type Client = api.Client

type WebhookResult = webhooks.Result

const (
	CallbackAuthorized        = core.CallbackAuthorized
	CallbackAlreadyAuthorized = core.CallbackAlreadyAuthorized
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithHTTPClient        = core.WithHTTPClient
	WithCredentialStore   = core.WithCredentialStore
	WithAuthStateStore    = core.WithAuthStateStore
	WithWebhookDispatcher = core.WithWebhookDispatcher
	WithTenantGuard       = core.WithTenantGuard
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
