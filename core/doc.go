// Package core contains the canonical ingestion domain: tenants, webhook
// events, synced entities, the topic vocabulary, store contracts, the error
// taxonomy and configuration. Adapters depend on this package; core must not
// depend on transport, storage or provider adapters.
package core
