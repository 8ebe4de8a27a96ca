package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/jgaull/fstop-notifications-twitch-chat/twitchapi"
)

// MetaResult is the outcome of the best-effort metadata fetch: either a value or the reason it
// is absent. The zero value is absent with no reason.
type MetaResult struct {
	meta   *twitchapi.ChannelMeta
	reason error
}

// MetaValue wraps fetched metadata.
func MetaValue(m *twitchapi.ChannelMeta) MetaResult {
	if m == nil {
		return MetaAbsent(errors.New("no metadata"))
	}
	return MetaResult{meta: m}
}

// MetaAbsent records why metadata is missing.
func MetaAbsent(reason error) MetaResult { return MetaResult{reason: reason} }

// Present reports whether metadata was fetched.
func (r MetaResult) Present() bool { return r.meta != nil }

// Meta returns the metadata or nil.
func (r MetaResult) Meta() *twitchapi.ChannelMeta { return r.meta }

// Reason returns why metadata is absent, or nil when present.
func (r MetaResult) Reason() error { return r.reason }

// OutcomeKind classifies a dispatch.
type OutcomeKind int

const (
	// OutcomeNoSubscribers means no integration matched the channel; nothing was submitted.
	OutcomeNoSubscribers OutcomeKind = iota
	// OutcomeAllDelivered means every submission returned a record id.
	OutcomeAllDelivered
	// OutcomePartialFailure means at least one submission failed (possibly all of them).
	OutcomePartialFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoSubscribers:
		return "no_subscribers"
	case OutcomeAllDelivered:
		return "all_delivered"
	case OutcomePartialFailure:
		return "partial_or_total_failure"
	default:
		return "unknown"
	}
}

// SubmitError is a failed submission for one integration.
type SubmitError struct {
	IntegrationID string
	UserID        string
	Err           error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit notification for integration %s (user %s): %v", e.IntegrationID, e.UserID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Delivery is the result of submitting one record. Exactly one of RecordID and Err is set.
type Delivery struct {
	IntegrationID string
	UserID        string
	RecordID      string
	Err           error
}

// OK reports whether the ingest service accepted the record.
func (d Delivery) OK() bool { return d.Err == nil }

// Outcome is what Handle reports for one chat message.
type Outcome struct {
	Kind         OutcomeKind
	Channel      string
	OriginatedAt time.Time
	Meta         MetaResult
	Deliveries   []Delivery // one per matched integration, in snapshot order
}

// Delivered returns the successful deliveries.
func (o Outcome) Delivered() []Delivery { return o.filter(true) }

// Failed returns the failed deliveries.
func (o Outcome) Failed() []Delivery { return o.filter(false) }

func (o Outcome) filter(ok bool) []Delivery {
	var out []Delivery
	for _, d := range o.Deliveries {
		if d.OK() == ok {
			out = append(out, d)
		}
	}
	return out
}

// Err joins the per-integration submit errors, or returns nil when nothing failed.
func (o Outcome) Err() error {
	var errs []error
	for _, d := range o.Deliveries {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	return errors.Join(errs...)
}
