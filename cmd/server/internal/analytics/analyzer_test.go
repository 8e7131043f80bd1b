package analytics

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/callytics/callytics/cmd/server/internal/store"
)

// scriptedClient routes prompts to canned replies by keyword.
type scriptedClient struct {
	replies map[string]string // prompt substring -> reply
	errs    map[string]error
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	for key, err := range c.errs {
		if strings.Contains(prompt, key) {
			return "", err
		}
	}
	for key, reply := range c.replies {
		if strings.Contains(prompt, key) {
			return reply, nil
		}
	}
	return "", fmt.Errorf("no scripted reply")
}

func testDefaults() Defaults {
	return Defaults{
		Sentiment: "Neutral",
		Topic:     "Unknown",
		Role:      "Unknown",
		Summary:   "",
		Profanity: false,
		Conflict:  false,
	}
}

func testUtterances() []store.Utterance {
	return []store.Utterance{
		{Speaker: "SPEAKER_00", Sequence: 0, Content: "Hello, thanks for calling."},
		{Speaker: "SPEAKER_01", Sequence: 1, Content: "My invoice is wrong."},
		{Speaker: "SPEAKER_00", Sequence: 2, Content: "Let me check that for you."},
	}
}

func happyClient() *scriptedClient {
	return &scriptedClient{
		replies: map[string]string{
			"agent and which is the customer": `{"SPEAKER_00": "Agent", "SPEAKER_01": "Customer"}`,
			"sentiment of each":               `[{"index":0,"sentiment":"Positive"},{"index":1,"sentiment":"Negative"},{"index":2,"sentiment":"Neutral"}]`,
			"contains profanity":              `[false, false, false]`,
			"Summarize":                       "Customer disputed an invoice and the agent investigated.",
			"conflict or escalation":          `{"conflict": false}`,
			"main topic":                      `{"topic": "Billing Dispute"}`,
		},
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	a := NewAnalyzer(happyClient(), testDefaults(), nil)

	res, err := a.Analyze(context.Background(), testUtterances())
	require.NoError(t, err)

	require.Equal(t, "Agent", res.Roles["SPEAKER_00"])
	require.Equal(t, "Customer", res.Roles["SPEAKER_01"])
	require.Equal(t, []string{"Positive", "Negative", "Neutral"}, res.Sentiments)
	require.Equal(t, []bool{false, false, false}, res.Profane)
	require.Equal(t, "Billing Dispute", res.Topic)
	require.False(t, res.Conflict)
	require.Empty(t, res.UsedFallback)
}

func TestAnalyzeExtractorFailureFallsBack(t *testing.T) {
	client := happyClient()
	client.errs = map[string]error{"main topic": fmt.Errorf("gateway down")}

	a := NewAnalyzer(client, testDefaults(), nil)
	res, err := a.Analyze(context.Background(), testUtterances())
	require.NoError(t, err)

	require.Equal(t, "Unknown", res.Topic)
	require.Equal(t, []string{"topic"}, res.UsedFallback)
	// the other extractors still ran
	require.Equal(t, "Agent", res.Roles["SPEAKER_00"])
}

func TestAnalyzeAllExtractorsDown(t *testing.T) {
	client := &scriptedClient{} // every Complete errors

	a := NewAnalyzer(client, testDefaults(), nil)
	res, err := a.Analyze(context.Background(), testUtterances())
	require.NoError(t, err)

	require.Equal(t, "Unknown", res.Roles["SPEAKER_00"])
	require.Equal(t, []string{"Neutral", "Neutral", "Neutral"}, res.Sentiments)
	require.Equal(t, "Unknown", res.Topic)
	require.Empty(t, res.Summary)
	require.Len(t, res.UsedFallback, 6)
}

func TestClassifyRolesRejectsUnknownRole(t *testing.T) {
	client := happyClient()
	client.replies["agent and which is the customer"] = `{"SPEAKER_00": "Chief Banana Officer", "SPEAKER_01": "Customer"}`

	a := NewAnalyzer(client, testDefaults(), nil)
	res, err := a.Analyze(context.Background(), testUtterances())
	require.NoError(t, err)

	require.Equal(t, "Unknown", res.Roles["SPEAKER_00"])
	require.Contains(t, res.UsedFallback, "role")

	annotated := res.Apply(testUtterances(), testDefaults())
	require.Equal(t, "Unknown", annotated[0].Speaker)
}

func TestClassifyRolesNormalizesCase(t *testing.T) {
	client := happyClient()
	client.replies["agent and which is the customer"] = `{"SPEAKER_00": "agent", "SPEAKER_01": " CUSTOMER "}`

	a := NewAnalyzer(client, testDefaults(), nil)
	roles, err := a.classifyRoles(context.Background(), testUtterances())
	require.NoError(t, err)
	require.Equal(t, "Agent", roles["SPEAKER_00"])
	require.Equal(t, "Customer", roles["SPEAKER_01"])
}

func TestScoreSentimentIndexReconciliation(t *testing.T) {
	client := happyClient()
	// out-of-range and missing indexes
	client.replies["sentiment of each"] = `[{"index":1,"sentiment":"Negative"},{"index":9,"sentiment":"Positive"}]`

	a := NewAnalyzer(client, testDefaults(), nil)
	out, err := a.scoreSentiment(context.Background(), testUtterances())
	require.NoError(t, err)
	require.Equal(t, []string{"Neutral", "Negative", "Neutral"}, out)
}

func TestScoreSentimentRejectsInvalidLabels(t *testing.T) {
	client := happyClient()
	client.replies["sentiment of each"] = `[{"index":0,"sentiment":"angry"}]`

	a := NewAnalyzer(client, testDefaults(), nil)
	_, err := a.scoreSentiment(context.Background(), testUtterances())
	require.Error(t, err)
}

func TestDetectProfanityPadsAndTruncates(t *testing.T) {
	client := happyClient()
	client.replies["contains profanity"] = `[true]`

	a := NewAnalyzer(client, testDefaults(), nil)
	out, err := a.detectProfanity(context.Background(), testUtterances())
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, false}, out)

	client.replies["contains profanity"] = `[true, false, true, true, true]`
	out, err = a.detectProfanity(context.Background(), testUtterances())
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestSummarizeTrimsLongReplies(t *testing.T) {
	client := happyClient()
	client.replies["Summarize"] = strings.Repeat("x", 2*maxSummaryLen)

	a := NewAnalyzer(client, testDefaults(), nil)
	out, err := a.summarize(context.Background(), testUtterances())
	require.NoError(t, err)
	require.Len(t, out, maxSummaryLen)
}

func TestSummarizeTrimsOnRuneBoundary(t *testing.T) {
	client := happyClient()
	client.replies["Summarize"] = strings.Repeat("é", 2*maxSummaryLen)

	a := NewAnalyzer(client, testDefaults(), nil)
	out, err := a.summarize(context.Background(), testUtterances())
	require.NoError(t, err)
	require.True(t, utf8.ValidString(out))
	require.Equal(t, maxSummaryLen, utf8.RuneCountInString(out))
}

func TestApplyAnnotations(t *testing.T) {
	a := NewAnalyzer(happyClient(), testDefaults(), nil)
	res, err := a.Analyze(context.Background(), testUtterances())
	require.NoError(t, err)

	annotated := res.Apply(testUtterances(), testDefaults())
	require.Equal(t, "Agent", annotated[0].Speaker)
	require.Equal(t, "Customer", annotated[1].Speaker)
	require.Equal(t, "Negative", annotated[1].Sentiment)
	require.False(t, annotated[1].Profane)
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"Here you go:\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{`The answer is [1,2,3] as requested.`, `[1,2,3]`},
		{`[{"index":0}]`, `[{"index":0}]`},
	}
	for _, tc := range cases {
		got, err := extractJSON(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := extractJSON("no json here")
	require.Error(t, err)
}
