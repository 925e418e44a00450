// Package api wraps the TikTok Shop Open API endpoints used by a connection.
// Every method builds a core.Request and hands it to a core.Caller, which
// signs, authenticates and replays it as needed.
package api
