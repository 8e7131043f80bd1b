package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/callytics/callytics/cmd/server/internal/store"
)

const (
	maxSummaryLen       = 512
	maxTranscriptChars  = 12000
	validSentimentList  = "Positive, Negative, Neutral"
	sentimentPositive   = "Positive"
	sentimentNegative   = "Negative"
	sentimentNeutralVal = "Neutral"
	roleAgent           = "Agent"
	roleCustomer        = "Customer"
)

// transcriptBlock renders utterances as numbered "speaker: text" lines for
// prompting. Long calls are truncated from the tail to stay inside the model
// context.
func transcriptBlock(utterances []store.Utterance) string {
	var b strings.Builder
	for _, u := range utterances {
		line := fmt.Sprintf("[%d] %s: %s\n", u.Sequence, u.Speaker, u.Content)
		if b.Len()+len(line) > maxTranscriptChars {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

// classifyRoles maps each diarized speaker label to a conversational role
// ("Agent" or "Customer"). Unknown speakers keep the configured default.
func (a *Analyzer) classifyRoles(ctx context.Context, utterances []store.Utterance) (map[string]string, error) {
	speakers := map[string]bool{}
	for _, u := range utterances {
		speakers[u.Speaker] = true
	}
	names := make([]string, 0, len(speakers))
	for s := range speakers {
		names = append(names, s)
	}

	prompt := fmt.Sprintf(`You are labeling a call-center conversation. The speakers are: %s.
Decide which speaker is the call-center agent and which is the customer.
Reply with only a JSON object mapping each speaker label to "Agent" or "Customer".

Transcript:
%s`, strings.Join(names, ", "), transcriptBlock(utterances))

	reply, err := a.client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var roles map[string]string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return nil, fmt.Errorf("decode role mapping: %w", err)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("empty role mapping")
	}
	// only the two known roles are allowed through to the Speaker column
	normalized := make(map[string]string, len(roles))
	for speaker, role := range roles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "agent":
			normalized[speaker] = roleAgent
		case "customer":
			normalized[speaker] = roleCustomer
		default:
			return nil, fmt.Errorf("invalid role %q for speaker %s", role, speaker)
		}
	}
	return normalized, nil
}

// scoreSentiment labels every utterance Positive, Negative or Neutral. The
// model replies with indexed records; indexes outside the utterance range are
// dropped and missing indexes keep the default, so a partially valid reply is
// still used.
func (a *Analyzer) scoreSentiment(ctx context.Context, utterances []store.Utterance) ([]string, error) {
	prompt := fmt.Sprintf(`Label the sentiment of each numbered utterance as one of: %s.
Reply with only a JSON array of objects like {"index": 0, "sentiment": "Neutral"}.

Transcript:
%s`, validSentimentList, transcriptBlock(utterances))

	reply, err := a.client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var records []struct {
		Index     int    `json:"index"`
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode sentiment records: %w", err)
	}

	out := make([]string, len(utterances))
	for i := range out {
		out[i] = a.defaults.Sentiment
	}
	matched := 0
	for _, r := range records {
		if r.Index < 0 || r.Index >= len(out) {
			continue
		}
		switch r.Sentiment {
		case sentimentPositive, sentimentNegative, sentimentNeutralVal:
			out[r.Index] = r.Sentiment
			matched++
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("no usable sentiment records")
	}
	return out, nil
}

// detectProfanity flags utterances containing profanity. The reply array is
// padded or truncated to the utterance count.
func (a *Analyzer) detectProfanity(ctx context.Context, utterances []store.Utterance) ([]bool, error) {
	prompt := fmt.Sprintf(`For each numbered utterance decide whether it contains profanity.
Reply with only a JSON array of booleans, one per utterance, in order.

Transcript:
%s`, transcriptBlock(utterances))

	reply, err := a.client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var flags []bool
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return nil, fmt.Errorf("decode profanity flags: %w", err)
	}

	out := make([]bool, len(utterances))
	for i := range out {
		if i < len(flags) {
			out[i] = flags[i]
		} else {
			out[i] = a.defaults.Profanity
		}
	}
	return out, nil
}

// summarize produces a short free-text summary, trimmed to maxSummaryLen.
func (a *Analyzer) summarize(ctx context.Context, utterances []store.Utterance) (string, error) {
	prompt := fmt.Sprintf(`Summarize this call-center conversation in two or three sentences.
Reply with the summary text only, no preamble.

Transcript:
%s`, transcriptBlock(utterances))

	reply, err := a.client.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(reply)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	if runes := []rune(summary); len(runes) > maxSummaryLen {
		summary = string(runes[:maxSummaryLen])
	}
	return summary, nil
}

// detectConflict reports whether the conversation escalates into conflict.
func (a *Analyzer) detectConflict(ctx context.Context, utterances []store.Utterance) (bool, error) {
	prompt := fmt.Sprintf(`Does this call-center conversation contain a conflict or escalation
between the speakers? Reply with only a JSON object like {"conflict": true}.

Transcript:
%s`, transcriptBlock(utterances))

	reply, err := a.client.Complete(ctx, prompt)
	if err != nil {
		return false, err
	}
	raw, err := extractJSON(reply)
	if err != nil {
		return false, err
	}
	var out struct {
		Conflict bool `json:"conflict"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return false, fmt.Errorf("decode conflict verdict: %w", err)
	}
	return out.Conflict, nil
}

// classifyTopic names the main topic of the call as a short phrase.
func (a *Analyzer) classifyTopic(ctx context.Context, utterances []store.Utterance) (string, error) {
	prompt := fmt.Sprintf(`Name the main topic of this call-center conversation in at most four words.
Reply with only a JSON object like {"topic": "Billing Dispute"}.

Transcript:
%s`, transcriptBlock(utterances))

	reply, err := a.client.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	raw, err := extractJSON(reply)
	if err != nil {
		return "", err
	}
	var out struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("decode topic: %w", err)
	}
	out.Topic = strings.TrimSpace(out.Topic)
	if out.Topic == "" {
		return "", fmt.Errorf("empty topic")
	}
	return out.Topic, nil
}
