package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tiktokshop/webhooks"
)

var (
	_ gocmd.Querier[GetConnectionMessage, ConnectionSummary]             = (*GetConnectionQuery)(nil)
	_ gocmd.Querier[GetWebhookDeliveryMessage, webhooks.DeliveryRecord] = (*GetWebhookDeliveryQuery)(nil)
)
