// Package ingest talks to the notification-ingest service: it lists chat integrations for the
// registry and writes one notification record per relayed chat message and subscriber.
package ingest

// NotificationType is the only record type the relay emits.
const NotificationType = "info"

// Record is the createNotification input. Data is a JSON string embedding {context, meta}.
type Record struct {
	Title         string `json:"title"`
	Type          string `json:"type"`
	Data          string `json:"data"`
	IntegrationID string `json:"integration"`
	UserID        string `json:"user"`
	OriginatedAt  int64  `json:"originatedAt"` // epoch milliseconds at message receipt
	Message       string `json:"message"`
}
