package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/graph"
)

// Categories is the fixed concept taxonomy. Unknown categories map to "other".
var Categories = []string{"person", "place", "organization", "preference", "fact", "event", "skill", "other"}

const extractionPrompt = `You distill durable knowledge about the user from conversation events.
Return JSON only:
{"concepts":[{"concept":"short label","description":"one sentence","category":"%s","confidence":0.0}],
 "relationships":[{"parent":"concept label","child":"concept label"}]}
Rules:
- At most %d concepts.
- category must be one of: %s.
- confidence is 0-1; use < 0.5 for guesses.
- Skip greetings, small talk and anything transient.`

type extractionOutput struct {
	Concepts []struct {
		Concept     string  `json:"concept"`
		Description string  `json:"description"`
		Category    string  `json:"category"`
		Confidence  float64 `json:"confidence"`
	} `json:"concepts"`
	Relationships []struct {
		Parent string `json:"parent"`
		Child  string `json:"child"`
	} `json:"relationships"`
}

// ExtractFromEpisodic batches episodes newer than the previous run's watermark
// and asks the LLM for concepts. A failed batch is counted and skipped.
func (s *Semantic) ExtractFromEpisodic(ctx context.Context, userID, sessionID string) (*ExtractionReport, error) {
	if s.llm == nil || s.episodic == nil {
		return nil, aierrors.InvalidArgument("extraction is not configured")
	}
	start := time.Now()
	logger := observability.LoggerFrom(ctx)

	watermark, _, err := s.lastExtraction(ctx, userID)
	if err != nil {
		return nil, err
	}
	episodes, err := s.episodic.GetContext(ctx, userID, sessionID, 0)
	if err != nil {
		return nil, err
	}
	pending := episodes[:0:0]
	for _, ep := range episodes {
		if ep.Timestamp.After(watermark) {
			pending = append(pending, ep)
		}
	}

	// The watermark only moves past a contiguous run of successful batches so
	// a failed batch is picked up again by the next extraction.
	report := &ExtractionReport{Episodes: len(pending)}
	previous, stalled := watermark, false
	for batch := range slices.Chunk(pending, s.cfg.ExtractionBatchSize) {
		if ctx.Err() != nil {
			break
		}
		report.Batches++
		if err := s.extractBatch(ctx, userID, batch, report); err != nil {
			report.FailedBatches++
			stalled = true
			logger.Warn("concept extraction batch failed", "user_id", userID, "batch", report.Batches, "error", err)
			continue
		}
		if stalled {
			continue
		}
		for _, ep := range batch {
			if ep.Timestamp.After(watermark) {
				watermark = ep.Timestamp
			}
		}
	}

	if watermark.After(previous) && s.graph != nil {
		_, err := s.graph.CreateNode(ctx, LabelExtractionRun, map[string]any{
			graph.PropUserID: userID,
			"timestamp":      formatTime(s.now()),
			"watermark":      formatTime(watermark),
			"concepts":       report.Concepts,
		})
		if err != nil {
			logger.Warn("failed to record extraction run", "user_id", userID, "error", err)
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info("semantic extraction completed",
		"user_id", userID,
		"episodes", report.Episodes,
		"concepts", report.Concepts,
		"merged", report.Merged,
		"relationships", report.Relationships,
		"failed_batches", report.FailedBatches,
		"latency_ms", report.Elapsed.Milliseconds(),
	)
	return report, nil
}

func (s *Semantic) extractBatch(ctx context.Context, userID string, batch []EpisodicMemory, report *ExtractionReport) error {
	var events strings.Builder
	for _, ep := range batch {
		fmt.Fprintf(&events, "[%s] (%s) %s\n", ep.Timestamp.Format(time.RFC3339), ep.Metadata.Source, ai.Truncate(ep.Content, 500))
	}
	system := fmt.Sprintf(extractionPrompt, strings.Join(Categories, "|"), s.cfg.MaxConceptsPerBatch, strings.Join(Categories, ", "))

	reply, err := s.llm.Chat(ctx, []ai.Message{ai.SystemPrompt(system), ai.UserMessage(events.String())},
		ai.WithOperation("extract"), ai.WithJSONMode(), ai.WithTemperature(0.1))
	if err != nil {
		return err
	}
	var out extractionOutput
	if _, err := ai.ParseJSON(reply, &out); err != nil {
		return err
	}

	ids := map[string]string{}
	for i, c := range out.Concepts {
		if i >= s.cfg.MaxConceptsPerBatch {
			report.Discarded += len(out.Concepts) - i
			break
		}
		if strings.TrimSpace(c.Concept) == "" || c.Confidence < s.cfg.MinConfidence {
			report.Discarded++
			continue
		}
		res, err := s.Store(ctx, SemanticMemory{
			UserID:      userID,
			Concept:     c.Concept,
			Description: c.Description,
			Metadata: SemanticMetadata{
				Category:   normalizeCategory(c.Category),
				Confidence: c.Confidence,
				Source:     "extraction",
			},
		})
		if err != nil {
			return err
		}
		ids[strings.ToLower(strings.TrimSpace(c.Concept))] = res.ID
		if res.Merged {
			report.Merged++
		} else {
			report.Concepts++
		}
	}

	for _, r := range out.Relationships {
		parent, ok1 := ids[strings.ToLower(strings.TrimSpace(r.Parent))]
		child, ok2 := ids[strings.ToLower(strings.TrimSpace(r.Child))]
		if !ok1 || !ok2 || parent == child {
			continue
		}
		if err := s.Link(ctx, parent, child); err != nil {
			return err
		}
		report.Relationships++
	}
	return nil
}

// lastExtraction returns the watermark and run time of the newest run.
func (s *Semantic) lastExtraction(ctx context.Context, userID string) (watermark, ranAt time.Time, err error) {
	if s.graph == nil {
		return time.Time{}, time.Time{}, nil
	}
	nodes, err := s.graph.Query(ctx, graph.PatternNodesByOwner, map[string]any{
		"label":          LabelExtractionRun,
		graph.PropUserID: userID,
		"limit":          1,
	})
	if err != nil {
		return time.Time{}, time.Time{}, aierrors.MemoryStoreError("read extraction runs", err)
	}
	if len(nodes) == 0 {
		return time.Time{}, time.Time{}, nil
	}
	return timeProp(nodes[0].Props, "watermark"), timeProp(nodes[0].Props, "timestamp"), nil
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if slices.Contains(Categories, c) {
		return c
	}
	return "other"
}
