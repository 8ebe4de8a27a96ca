// Package registry holds the set of active chat integrations and the channel index derived from it.
//
// A Snapshot is built once from a source listing and never mutated afterwards. The Registry
// publishes snapshots through an atomic pointer, so readers (the dispatcher, the HTTP status
// handler) always see a complete index even while a refresh is running.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SettingChannelName is the integration setting holding the subscribed chat channel.
const SettingChannelName = "channelName"

// ErrMalformedIntegration marks source records that cannot be indexed.
var ErrMalformedIntegration = errors.New("malformed integration")

// Integration binds a user's account to a chat channel. Settings is integration-type specific;
// only channelName is read here.
type Integration struct {
	ID       string
	UserID   string
	Settings map[string]any
}

// ChannelName returns the subscribed channel, or "" when the setting is missing or not a string.
func (i Integration) ChannelName() string {
	s, _ := i.Settings[SettingChannelName].(string)
	return s
}

// Snapshot is an immutable view of the loaded integrations.
type Snapshot struct {
	integrations []Integration
	byChannel    map[string][]Integration
	channels     []string
	loadedAt     time.Time
}

type integrationFields struct {
	ID          string `validate:"required"`
	UserID      string `validate:"required"`
	ChannelName string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewSnapshot validates integrations and builds the channel index. Channel keys are lowercased;
// the channel list keeps the first spelling seen for each key, in order of first appearance.
func NewSnapshot(integrations []Integration) (*Snapshot, error) {
	s := &Snapshot{
		integrations: make([]Integration, 0, len(integrations)),
		byChannel:    make(map[string][]Integration),
		loadedAt:     time.Now(),
	}
	for i, in := range integrations {
		if err := checkIntegration(in); err != nil {
			return nil, fmt.Errorf("integration %d (id=%q): %w", i, in.ID, err)
		}
		in.Settings = maps.Clone(in.Settings)
		name := in.ChannelName()
		key := strings.ToLower(name)
		if _, seen := s.byChannel[key]; !seen {
			s.channels = append(s.channels, name)
		}
		s.byChannel[key] = append(s.byChannel[key], in)
		s.integrations = append(s.integrations, in)
	}
	return s, nil
}

func checkIntegration(in Integration) error {
	if raw, ok := in.Settings[SettingChannelName]; ok {
		if _, isString := raw.(string); !isString {
			return fmt.Errorf("%w: %s is %T, want string", ErrMalformedIntegration, SettingChannelName, raw)
		}
	}
	err := validate.Struct(integrationFields{ID: in.ID, UserID: in.UserID, ChannelName: in.ChannelName()})
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: missing %s", ErrMalformedIntegration, verrs[0].Field())
		}
		return fmt.Errorf("%w: %v", ErrMalformedIntegration, err)
	}
	return nil
}

// Integrations returns a copy of all integrations in source order.
func (s *Snapshot) Integrations() []Integration { return slices.Clone(s.integrations) }

// Channels returns the deduplicated channel names to join.
func (s *Snapshot) Channels() []string { return slices.Clone(s.channels) }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len is the number of integrations.
func (s *Snapshot) Len() int { return len(s.integrations) }

// Match returns the integrations subscribed to channel. The lookup lowercases channel and does no
// other normalization; a nil snapshot or an unknown channel yields nil.
func Match(s *Snapshot, channel string) []Integration {
	if s == nil {
		return nil
	}
	return slices.Clone(s.byChannel[strings.ToLower(channel)])
}
