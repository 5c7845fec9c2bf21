// Package inbound routes verified webhook payloads to their handlers through
// a static topic table. Unknown topics produce a typed unhandled outcome
// rather than an error.
package inbound
