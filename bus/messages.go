// Package bus defines the messages exchanged between the refresh orchestrator and
// the collection context, and an in-process bus that carries them.
//
// Every message crosses the bus as JSON. Decode is the single place where wire
// payloads become typed messages; payloads with an unknown type are rejected there.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
)

// ErrUnknownMessage is returned by Decode for payloads whose type is not recognized.
var ErrUnknownMessage = errors.New("unknown message type")

// Kind is the discriminator carried in the "type" field of every message.
type Kind string

const (
	KindCollect        Kind = "collect"
	KindProgress       Kind = "progress"
	KindResult         Kind = "result"
	KindStatusRequest  Kind = "status-request"
	KindStatusResponse Kind = "status-response"
)

// Message is implemented by every message type.
type Message interface {
	Kind() Kind
}

// CollectRequest asks the collection context to harvest activities not in ExistingUIDs.
// The requester stops waiting at Deadline, so the collection is abandoned then.
type CollectRequest struct {
	RunID        string     `json:"runId"`
	ExistingUIDs []string   `json:"existingUids"`
	FetchLimit   *int       `json:"fetchLimit"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// Progress reports a collector stage, optionally carrying a delta for one activity.
type Progress struct {
	RunID         string       `json:"runId"`
	Origin        string       `json:"origin"`
	Stage         cache.Stage  `json:"stage"`
	Total         *int         `json:"total,omitempty"`
	Completed     *int         `json:"completed,omitempty"`
	ActivityUID   string       `json:"activityUid,omitempty"`
	ActivityTitle string       `json:"activityTitle,omitempty"`
	Error         string       `json:"error,omitempty"`
	Delta         *cache.Delta `json:"delta,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Update converts the message into the form consumed by cache.NormalizeProgress.
func (p Progress) Update() cache.ProgressUpdate {
	return cache.ProgressUpdate{
		Stage:         p.Stage,
		Total:         p.Total,
		Completed:     p.Completed,
		ActivityUID:   p.ActivityUID,
		ActivityTitle: p.ActivityTitle,
		Timestamp:     p.Timestamp,
	}
}

// Result is the terminal message of a collection run.
type Result struct {
	RunID   string       `json:"runId"`
	Success bool         `json:"success"`
	Data    *cache.Delta `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// StatusRequest asks the orchestrator for its current state.
type StatusRequest struct{}

// StatusResponse answers a StatusRequest.
type StatusResponse struct {
	Success    bool                   `json:"success"`
	InProgress bool                   `json:"inProgress"`
	Progress   *cache.RefreshProgress `json:"progress"`
	Error      string                 `json:"error,omitempty"`
}

func (CollectRequest) Kind() Kind { return KindCollect }
func (Progress) Kind() Kind       { return KindProgress }
func (Result) Kind() Kind         { return KindResult }
func (StatusRequest) Kind() Kind  { return KindStatusRequest }
func (StatusResponse) Kind() Kind { return KindStatusResponse }

// Encode serializes a message with its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case CollectRequest:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			CollectRequest
		}{KindCollect, v})
	case Progress:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Progress
		}{KindProgress, v})
	case Result:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Result
		}{KindResult, v})
	case StatusRequest:
		return json.Marshal(struct {
			Type Kind `json:"type"`
		}{KindStatusRequest})
	case StatusResponse:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			StatusResponse
		}{KindStatusResponse, v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

// Decode parses a wire payload into its typed message.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding message envelope: %w", err)
	}

	var (
		m   Message
		err error
	)
	switch envelope.Type {
	case KindCollect:
		var v CollectRequest
		err = json.Unmarshal(data, &v)
		m = v
	case KindProgress:
		var v Progress
		err = json.Unmarshal(data, &v)
		m = v
	case KindResult:
		var v Result
		err = json.Unmarshal(data, &v)
		m = v
	case KindStatusRequest:
		m = StatusRequest{}
	case KindStatusResponse:
		var v StatusResponse
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, envelope.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s message: %w", envelope.Type, err)
	}
	return m, nil
}
