// Package webhooks contains the Shopify delivery boundary: header extraction,
// HMAC signature verification and the ingestion Processor.
//
// A delivery moves through a fixed sequence:
// headers -> verify -> resolve tenant -> decode -> dedupe -> log -> dispatch -> log outcome.
// Each step either yields its typed result or stops the pipeline with an
// HTTP-shaped Response.
package webhooks
