package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Neo4jStore implements GraphStore over the Neo4j HTTP transactional endpoint.
// Node properties are kept in a JSON "props" property next to the indexed
// id, user_id, session_id, seq and created_ts properties.
type Neo4jStore struct {
	Endpoint   string
	Database   string
	Username   string
	Password   string
	HTTPClient *http.Client

	mu      sync.Mutex
	lastSeq int64
}

// NewNeo4jStore creates a store; database defaults to "neo4j".
func NewNeo4jStore(endpoint, database, username, password string) *Neo4jStore {
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{
		Endpoint:   endpoint,
		Database:   database,
		Username:   username,
		Password:   password,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// nextSeq returns a monotonically increasing sequence seeded from the clock,
// so ordering survives process restarts.
func (s *Neo4jStore) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastSeq {
		now = s.lastSeq + 1
	}
	s.lastSeq = now
	return now
}

func (s *Neo4jStore) CreateNode(ctx context.Context, label string, props map[string]any) (string, error) {
	if !ValidIdentifier(label) {
		return "", fmt.Errorf("invalid label %q", label)
	}
	id := stringParam(props, "id")
	if id == "" {
		id = uuid.NewString()
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal props: %w", err)
	}

	cypher := fmt.Sprintf(
		"CREATE (n:%s {id:$id, user_id:$user_id, session_id:$session_id, seq:$seq, created_ts:$created_ts, props:$props}) RETURN n.id",
		label)
	_, err = s.exec(ctx, cypher, map[string]any{
		"id":         id,
		"user_id":    stringParam(props, PropUserID),
		"session_id": stringParam(props, PropSessionID),
		"seq":        s.nextSeq(),
		"created_ts": time.Now().Unix(),
		"props":      string(raw),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Neo4jStore) CreateRelationship(ctx context.Context, fromID, toID, relType string) error {
	if !ValidIdentifier(relType) {
		return fmt.Errorf("invalid relationship type %q", relType)
	}
	cypher := fmt.Sprintf("MATCH (a {id:$from}), (b {id:$to}) MERGE (a)-[:%s]->(b)", relType)
	_, err := s.exec(ctx, cypher, map[string]any{"from": fromID, "to": toID})
	return err
}

const returnNode = " RETURN n.id, labels(n)[0], n.props, n.seq, n.created_ts"

func (s *Neo4jStore) Query(ctx context.Context, pattern Pattern, params map[string]any) ([]Node, error) {
	var cypher string
	args := map[string]any{}

	switch pattern {
	case PatternNodeByID:
		cypher = "MATCH (n {id:$id})" + returnNode
		args["id"] = stringParam(params, "id")

	case PatternNodesByOwner:
		label := stringParam(params, "label")
		if !ValidIdentifier(label) {
			return nil, fmt.Errorf("invalid label %q", label)
		}
		cypher = fmt.Sprintf("MATCH (n:%s {user_id:$user_id})", label)
		args["user_id"] = stringParam(params, PropUserID)
		if sessionID := stringParam(params, PropSessionID); sessionID != "" {
			cypher += " WHERE n.session_id = $session_id"
			args["session_id"] = sessionID
		}
		if limit := intParam(params, "limit"); limit > 0 {
			// Take the newest N, then flip back to oldest first.
			cypher += " WITH n ORDER BY n.seq DESC LIMIT $limit WITH n ORDER BY n.seq ASC"
			args["limit"] = limit
		} else {
			cypher += " WITH n ORDER BY n.seq ASC"
		}
		cypher += returnNode

	case PatternNeighbors:
		relType := stringParam(params, "type")
		if !ValidIdentifier(relType) {
			return nil, fmt.Errorf("invalid relationship type %q", relType)
		}
		cypher = fmt.Sprintf("MATCH ({id:$id})-[:%s]->(n) WITH n ORDER BY n.seq ASC", relType) + returnNode
		args["id"] = stringParam(params, "id")

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, pattern)
	}

	rows, err := s.exec(ctx, cypher, args)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(rows))
	for _, row := range rows {
		n, err := decodeNeo4jRow(row)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (s *Neo4jStore) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	nodes, err := s.Query(ctx, PatternNodeByID, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	merged := nodes[0].Props
	for k, v := range props {
		if k != "id" {
			merged[k] = v
		}
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal props: %w", err)
	}
	_, err = s.exec(ctx, "MATCH (n {id:$id}) SET n.props = $props", map[string]any{"id": id, "props": string(raw)})
	return err
}

func (s *Neo4jStore) DeleteNodes(ctx context.Context, label, userID, sessionID string) (int, error) {
	if !ValidIdentifier(label) {
		return 0, fmt.Errorf("invalid label %q", label)
	}
	cypher := fmt.Sprintf("MATCH (n:%s {user_id:$user_id})", label)
	args := map[string]any{"user_id": userID}
	if sessionID != "" {
		cypher += " WHERE n.session_id = $session_id"
		args["session_id"] = sessionID
	}
	cypher += " DETACH DELETE n RETURN count(n)"

	rows, err := s.exec(ctx, cypher, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return int(numberParam(rows[0][0])), nil
}

// Ping checks connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	_, err := s.exec(ctx, "RETURN 1", nil)
	return err
}

type neo4jResponse struct {
	Results []struct {
		Data []struct {
			Row []any `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// exec runs one statement and returns its rows.
func (s *Neo4jStore) exec(ctx context.Context, cypher string, params map[string]any) ([][]any, error) {
	payload := map[string]any{
		"statements": []map[string]any{{
			"statement":  cypher,
			"parameters": params,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/db/%s/tx/commit", s.Endpoint, s.Database), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("neo4j query failed, status: %d", resp.StatusCode)
	}

	var out neo4jResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("neo4j error %s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	if len(out.Results) == 0 {
		return nil, nil
	}

	rows := make([][]any, 0, len(out.Results[0].Data))
	for _, d := range out.Results[0].Data {
		rows = append(rows, d.Row)
	}
	return rows, nil
}

func decodeNeo4jRow(row []any) (Node, error) {
	if len(row) < 5 {
		return Node{}, fmt.Errorf("unexpected neo4j row width %d", len(row))
	}
	n := Node{Props: map[string]any{}}
	n.ID, _ = row[0].(string)
	n.Label, _ = row[1].(string)
	if raw, ok := row[2].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Props); err != nil {
			return Node{}, fmt.Errorf("decode props of %s: %w", n.ID, err)
		}
	}
	n.Seq = numberParam(row[3])
	n.CreatedAt = time.Unix(numberParam(row[4]), 0)
	return n, nil
}

func numberParam(v any) int64 {
	if num, ok := v.(json.Number); ok {
		i, _ := num.Int64()
		return i
	}
	return 0
}

var _ GraphStore = (*Neo4jStore)(nil)
