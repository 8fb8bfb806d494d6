// Package classifier turns raw webhook bodies into notification drafts.
package classifier

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/pkg/errors"
)

// Event kinds accepted from the media platform.
const (
	ConversionStarted   = "conversion_started"
	ConversionCompleted = "conversion_completed"
	ConversionFailed    = "conversion_failed"
	ChannelActive       = "channel_active"
	ChannelIdle         = "channel_idle"
	MediaCreated        = "media_created"
	MediaUpdated        = "media_updated"
	MediaDeleted        = "media_deleted"
	ThumbnailCreated    = "thumbnail_created"
	ThumbnailUpdated    = "thumbnail_updated"
	TrackCreated        = "track_created"
	TrackUpdated        = "track_updated"
	TrackDeleted        = "track_deleted"
)

const (
	TitleCreated = "New Video Uploaded"
	TitleUpdated = "Video Updated"
	DefaultBody  = "New Media"
)

var allowed = map[string]struct{}{
	ConversionStarted:   {},
	ConversionCompleted: {},
	ConversionFailed:    {},
	ChannelActive:       {},
	ChannelIdle:         {},
	MediaCreated:        {},
	MediaUpdated:        {},
	MediaDeleted:        {},
	ThumbnailCreated:    {},
	ThumbnailUpdated:    {},
	TrackCreated:        {},
	TrackUpdated:        {},
	TrackDeleted:        {},
}

// Kinds returns the allow-list.
func Kinds() []string {
	out := make([]string, 0, len(allowed))
	for k := range allowed {
		out = append(out, k)
	}
	return out
}

// IsAllowed reports whether kind is on the allow-list.
func IsAllowed(kind string) bool {
	_, ok := allowed[kind]
	return ok
}

// Outcome of classifying an event.
type Outcome int

const (
	Accepted Outcome = iota
	Ignored
)

// Classification is the classifier's verdict for one event.
type Classification struct {
	Outcome Outcome
	Kind    string
	Draft   *model.NotificationDraft
}

// Classify validates raw and, for allow-listed kinds, builds a draft.
// Unknown kinds are Ignored, not errors.
func Classify(raw []byte) (*Classification, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope == nil {
		return nil, errors.MalformedEvent("webhook body is not a JSON object", err)
	}

	kindRaw, ok := envelope["event"]
	if !ok {
		return nil, errors.MalformedEvent("webhook body has no event field", nil)
	}
	var kind string
	if err := json.Unmarshal(kindRaw, &kind); err != nil || kind == "" {
		return nil, errors.MalformedEvent("event field must be a non-empty string", err)
	}

	if !IsAllowed(kind) {
		return &Classification{Outcome: Ignored, Kind: kind}, nil
	}

	// A data field that is not an object counts as absent.
	data := map[string]interface{}{}
	if rawData, ok := envelope["data"]; ok {
		if err := json.Unmarshal(rawData, &data); err != nil || data == nil {
			data = map[string]interface{}{}
		}
	}

	mediaID := stringField(data, "media_id")
	if mediaID == "" {
		mediaID = stringField(data, "id")
	}
	body := stringField(data, "title")
	if body == "" {
		body = DefaultBody
	}

	title := TitleUpdated
	if kind == MediaCreated {
		title = TitleCreated
	}

	return &Classification{
		Outcome: Accepted,
		Kind:    kind,
		Draft: &model.NotificationDraft{
			Type:  model.NotificationTypeMedia,
			Title: title,
			Body:  body,
			Data: model.StringMap{
				"type": string(model.NotificationTypeMedia),
				"id":   mediaID,
			},
		},
	}, nil
}

func stringField(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
