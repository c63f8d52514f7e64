package storage

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var actionJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Action kinds recorded by the lifecycle manager.
const (
	ActionRequested   = "requested"
	ActionConfirmed   = "confirmed"
	ActionCancelled   = "cancelled"
	ActionTransferred = "transferred"
	ActionReceived    = "received"
	ActionStarted     = "started"
	ActionFinished    = "finished"
	ActionExtended    = "extended"
	ActionExpired     = "expired"
)

// NewAction builds an audit record with the payload encoded as JSON.
func NewAction(userID, bookID int64, kind string, payload any) (Action, error) {
	var raw []byte
	if payload != nil {
		data, err := actionJSON.Marshal(payload)
		if err != nil {
			return Action{}, fmt.Errorf("encode action payload: %w", err)
		}
		raw = data
	}
	return Action{
		UserID:  userID,
		BookID:  bookID,
		Kind:    kind,
		Payload: raw,
		CTime:   time.Now().UTC(),
	}, nil
}

// DecodeActionPayload unmarshals an action payload into dst.
func DecodeActionPayload(a Action, dst any) error {
	if len(a.Payload) == 0 {
		return nil
	}
	if err := actionJSON.Unmarshal(a.Payload, dst); err != nil {
		return fmt.Errorf("decode action payload: %w", err)
	}
	return nil
}
