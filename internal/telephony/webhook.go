package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"collections-engine/internal/calls"
)

// OutcomePayload is the subset of the provider's post-call webhook we read.
// call_length is reported in minutes.
type OutcomePayload struct {
	CallID                 string            `json:"call_id"`
	Status                 string            `json:"status"`
	AnsweredBy             string            `json:"answered_by"`
	CallLength             float64           `json:"call_length"`
	RecordingURL           string            `json:"recording_url"`
	ConcatenatedTranscript string            `json:"concatenated_transcript"`
	TransferredTo          string            `json:"transferred_to"`
	ErrorMessage           string            `json:"error_message"`
	EndAt                  string            `json:"end_at"`
	Metadata               map[string]string `json:"metadata"`
}

const MetadataCallLogID = "call_log_id"

var ErrInvalidPayload = errors.New("telephony: invalid outcome payload")

func ParseOutcomePayload(r io.Reader) (OutcomePayload, error) {
	var p OutcomePayload
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	if err := dec.Decode(&p); err != nil {
		return OutcomePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p.CallID = strings.TrimSpace(p.CallID)
	if p.CallID == "" && p.Metadata[MetadataCallLogID] == "" {
		return OutcomePayload{}, fmt.Errorf("%w: call_id is required", ErrInvalidPayload)
	}
	return p, nil
}

// TerminalStatus maps the provider's vocabulary onto a CallLog terminal state.
func (p OutcomePayload) TerminalStatus() calls.Status {
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if p.ErrorMessage != "" || status == "failed" || status == "error" {
		return calls.StatusFailed
	}
	if strings.EqualFold(strings.TrimSpace(p.AnsweredBy), "voicemail") {
		return calls.StatusVoicemail
	}
	switch status {
	case "no-answer", "no_answer", "busy", "canceled", "cancelled":
		return calls.StatusNoAnswer
	}
	return calls.StatusCompleted
}

// Engaged is true when the debtor asked for a transfer during the call.
func (p OutcomePayload) Engaged() bool {
	return strings.TrimSpace(p.TransferredTo) != ""
}

func (p OutcomePayload) ToOutcome(receivedAt time.Time) calls.Outcome {
	out := calls.Outcome{
		CallLogID:      p.Metadata[MetadataCallLogID],
		ProviderCallID: p.CallID,
		Status:         p.TerminalStatus(),
		RecordingURL:   p.RecordingURL,
		Transcript:     p.ConcatenatedTranscript,
		Engaged:        p.Engaged(),
		ErrorMessage:   p.ErrorMessage,
		At:             receivedAt,
	}
	if p.CallLength > 0 {
		secs := int(math.Round(p.CallLength * 60))
		out.DurationSeconds = &secs
	}
	if p.EndAt != "" {
		if t, err := time.Parse(time.RFC3339, p.EndAt); err == nil {
			out.At = t.UTC()
		}
	}
	return out
}
