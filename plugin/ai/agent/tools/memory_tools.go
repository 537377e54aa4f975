package tools

import (
	"context"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai/memory"
)

// MemoryTools returns tools that read and write the requesting user's memory.
// The user is taken from the request context, never from tool arguments.
func MemoryTools(episodic memory.EpisodicManager, semantic memory.SemanticManager) []Tool {
	return []Tool{
		NewFuncTool(Definition{
			Name:        "search_memories",
			Description: "Search the user's past conversation and stored knowledge",
			Parameters: []Parameter{
				{Name: "query", Type: TypeString, Required: true},
				{Name: "limit", Type: TypeInteger, Description: "maximum hits per memory kind, default 5"},
			},
		}, func(ctx context.Context, args map[string]any) (any, error) {
			userID, err := requestUser(ctx)
			if err != nil {
				return nil, err
			}
			query, _ := args["query"].(string)
			limit := 5
			if f, ok := toFloat(args["limit"]); ok && f > 0 {
				limit = int(f)
			}

			episodes, err := episodic.Search(ctx, memory.EpisodicQuery{UserID: userID, Query: query, Limit: limit})
			if err != nil {
				return nil, err
			}
			concepts, err := semantic.Search(ctx, userID, query, 0, limit)
			if err != nil {
				return nil, err
			}

			type episodeHit struct {
				ID      string  `json:"id"`
				Content string  `json:"content"`
				At      string  `json:"timestamp"`
				Score   float64 `json:"score"`
			}
			type conceptHit struct {
				ID          string  `json:"id"`
				Concept     string  `json:"concept"`
				Description string  `json:"description"`
				Similarity  float64 `json:"similarity"`
			}
			out := struct {
				Episodes []episodeHit `json:"episodes"`
				Concepts []conceptHit `json:"concepts"`
			}{Episodes: []episodeHit{}, Concepts: []conceptHit{}}
			for _, e := range episodes {
				out.Episodes = append(out.Episodes, episodeHit{
					ID: e.Memory.ID, Content: e.Memory.Content,
					At: e.Memory.Timestamp.Format("2006-01-02 15:04"), Score: e.Score,
				})
			}
			for _, c := range concepts {
				out.Concepts = append(out.Concepts, conceptHit{
					ID: c.Memory.ID, Concept: c.Memory.Concept,
					Description: c.Memory.Description, Similarity: c.Similarity,
				})
			}
			return out, nil
		}),
		NewFuncTool(Definition{
			Name:        "store_knowledge",
			Description: "Remember a fact about the user as a named concept",
			Parameters: []Parameter{
				{Name: "concept", Type: TypeString, Required: true, Description: "short label"},
				{Name: "description", Type: TypeString, Required: true},
				{Name: "category", Type: TypeString, Description: "person, place, organization, preference, fact, event, skill or other"},
			},
		}, func(ctx context.Context, args map[string]any) (any, error) {
			userID, err := requestUser(ctx)
			if err != nil {
				return nil, err
			}
			concept, _ := args["concept"].(string)
			description, _ := args["description"].(string)
			category, _ := args["category"].(string)

			res, err := semantic.Store(ctx, memory.SemanticMemory{
				UserID:      userID,
				Concept:     concept,
				Description: description,
				Metadata: memory.SemanticMetadata{
					Category:   category,
					Confidence: 1,
					Source:     memory.SourceUser,
				},
			})
			if err != nil {
				return nil, err
			}
			return res, nil
		}),
	}
}

func requestUser(ctx context.Context) (string, error) {
	if rc, ok := observability.FromContext(ctx); ok && rc.UserID != "" {
		return rc.UserID, nil
	}
	return "", aierrors.InvalidArgument("memory tools need a user in the request context")
}
