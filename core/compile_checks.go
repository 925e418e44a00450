package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ CredentialStore   = (*MemoryCredentialStore)(nil)
	_ AuthStateStore    = (*MemoryAuthStateStore)(nil)
	_ Caller            = (*Executor)(nil)
	_ WebhookDispatcher = WebhookDispatcherFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
