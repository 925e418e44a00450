// Package webhooks verifies TikTok Shop webhook deliveries and hands accepted
// notifications to a dispatcher.
//
// Verification runs over the raw request body before any parsing. Rejected
// deliveries answer 401 and are never dispatched; dispatch failures answer
// 500 so the platform redelivers.
package webhooks
