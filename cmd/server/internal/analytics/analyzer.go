package analytics

import (
	"context"
	"log/slog"

	"github.com/callytics/callytics/cmd/server/internal/metrics"
	"github.com/callytics/callytics/cmd/server/internal/store"
)

// Defaults are the values used when an extractor fails. They mirror the
// fallback section of the service configuration.
type Defaults struct {
	Sentiment string
	Topic     string
	Role      string
	Summary   string
	Profanity bool
	Conflict  bool
}

// Result carries every annotation produced for one call.
type Result struct {
	Roles      map[string]string // speaker label -> role
	Sentiments []string          // one per utterance
	Profane    []bool            // one per utterance
	Summary    string
	Conflict   bool
	Topic      string

	// UsedFallback lists the extractors that failed and fell back to their
	// configured defaults.
	UsedFallback []string
}

// Analyzer runs the six extractors over an assembled transcript.
type Analyzer struct {
	client   ChatClient
	defaults Defaults
	log      *slog.Logger
}

// NewAnalyzer creates an Analyzer using the given chat client and fallback
// defaults.
func NewAnalyzer(client ChatClient, defaults Defaults, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{client: client, defaults: defaults, log: log}
}

// Analyze runs every extractor and returns a complete Result. An extractor
// failure never fails the call: the failing extractor's default is used, the
// fallback is counted in metrics and recorded on the Result. Only context
// cancellation aborts the whole analysis.
func (a *Analyzer) Analyze(ctx context.Context, utterances []store.Utterance) (*Result, error) {
	res := &Result{}

	roles, err := a.classifyRoles(ctx, utterances)
	if failed := a.noteFailure(ctx, res, "role", err); failed {
		roles = map[string]string{}
		for _, u := range utterances {
			roles[u.Speaker] = a.defaults.Role
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res.Roles = roles

	sentiments, err := a.scoreSentiment(ctx, utterances)
	if failed := a.noteFailure(ctx, res, "sentiment", err); failed {
		sentiments = make([]string, len(utterances))
		for i := range sentiments {
			sentiments[i] = a.defaults.Sentiment
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res.Sentiments = sentiments

	profane, err := a.detectProfanity(ctx, utterances)
	if failed := a.noteFailure(ctx, res, "profanity", err); failed {
		profane = make([]bool, len(utterances))
		for i := range profane {
			profane[i] = a.defaults.Profanity
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res.Profane = profane

	summary, err := a.summarize(ctx, utterances)
	if failed := a.noteFailure(ctx, res, "summary", err); failed {
		summary = a.defaults.Summary
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res.Summary = summary

	conflict, err := a.detectConflict(ctx, utterances)
	if failed := a.noteFailure(ctx, res, "conflict", err); failed {
		conflict = a.defaults.Conflict
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res.Conflict = conflict

	topic, err := a.classifyTopic(ctx, utterances)
	if failed := a.noteFailure(ctx, res, "topic", err); failed {
		topic = a.defaults.Topic
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res.Topic = topic

	return res, nil
}

// noteFailure records a fallback for the named extractor. Context
// cancellation is not counted: the run is aborting, not degrading.
func (a *Analyzer) noteFailure(ctx context.Context, res *Result, extractor string, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	a.log.Warn("extractor failed, using fallback",
		"extractor", extractor,
		"error", err)
	metrics.RecordExtractorFallback(extractor)
	res.UsedFallback = append(res.UsedFallback, extractor)
	return true
}

// Apply writes the annotations back onto the utterances: speaker labels are
// replaced with their classified roles and per-utterance sentiment and
// profanity are filled in. Slices shorter than the utterance list leave the
// remaining entries at their defaults.
func (r *Result) Apply(utterances []store.Utterance, defaults Defaults) []store.Utterance {
	out := make([]store.Utterance, len(utterances))
	copy(out, utterances)
	for i := range out {
		if role, ok := r.Roles[out[i].Speaker]; ok && role != "" {
			out[i].Speaker = role
		}
		if i < len(r.Sentiments) {
			out[i].Sentiment = r.Sentiments[i]
		} else {
			out[i].Sentiment = defaults.Sentiment
		}
		if i < len(r.Profane) {
			out[i].Profane = r.Profane[i]
		} else {
			out[i].Profane = defaults.Profanity
		}
	}
	return out
}
