// Package transport moves batches and confirmations over Kafka.
//
// Inbound, KafkaConsumer reads JSON batch documents from a consumer group
// and commits an offset only after the handler processed the batch. A
// handler error leaves the offset uncommitted so the batch is redelivered.
//
// Outbound, KafkaPublisher writes confirmation documents keyed by hbx
// enrollment id. OutboxRelay drains the store outbox into a Sender with
// bounded retries and dead-lettering.
package transport
