// Package resilience guards live webhook dispatch with a circuit breaker,
// keeps failed deliveries in a bounded in-memory dead-letter queue and
// replays them with exponential backoff.
package resilience
