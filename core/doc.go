// Package core contains the TikTok Shop domain contracts and the signed
// request core: request signing, the credential lifecycle, per-tenant refresh
// coordination and the authorization flow. Storage, dispatch and HTTP routing
// adapters depend on this package; core does not depend on them.
package core
