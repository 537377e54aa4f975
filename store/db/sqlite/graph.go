package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/agentcore/store"
)

func (d *DB) CreateGraphNode(ctx context.Context, create *store.GraphNode) (*store.GraphNode, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.Props == "" {
		create.Props = "{}"
	}
	fields := []string{"id", "label", "user_id", "session_id", "props", "created_ts"}
	args := []any{create.ID, create.Label, create.UserID, create.SessionID, create.Props, create.CreatedTs}

	stmt := `INSERT INTO graph_node (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING seq`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.Seq); err != nil {
		return nil, fmt.Errorf("failed to create graph_node: %w", err)
	}
	return create, nil
}

func (d *DB) ListGraphNodes(ctx context.Context, find *store.FindGraphNode) ([]*store.GraphNode, error) {
	if find == nil {
		return nil, fmt.Errorf("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Label != nil {
		where, args = append(where, "label = "+placeholder(len(args)+1)), append(args, *find.Label)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}

	query := `SELECT id, seq, label, user_id, session_id, props, created_ts
		FROM graph_node WHERE ` + strings.Join(where, " AND ")
	if find.Limit > 0 {
		// Newest N, returned oldest first.
		query = `SELECT * FROM (` + query + fmt.Sprintf(` ORDER BY seq DESC LIMIT %d`, find.Limit) + `) AS recent ORDER BY seq ASC`
	} else {
		query += ` ORDER BY seq ASC`
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list graph_node: %w", err)
	}
	defer rows.Close()

	list := []*store.GraphNode{}
	for rows.Next() {
		n := &store.GraphNode{}
		if err := rows.Scan(&n.ID, &n.Seq, &n.Label, &n.UserID, &n.SessionID, &n.Props, &n.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan graph_node: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (d *DB) UpdateGraphNode(ctx context.Context, update *store.UpdateGraphNode) error {
	stmt := `UPDATE graph_node SET props = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	res, err := d.db.ExecContext(ctx, stmt, update.Props, update.ID)
	if err != nil {
		return fmt.Errorf("failed to update graph_node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("graph_node %s not found", update.ID)
	}
	return nil
}

func (d *DB) DeleteGraphNodes(ctx context.Context, delete *store.DeleteGraphNode) (int64, error) {
	where, args := []string{"label = " + placeholder(1), "user_id = " + placeholder(2)}, []any{delete.Label, delete.UserID}
	if delete.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *delete.SessionID)
	}
	cond := strings.Join(where, " AND ")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	edgeStmt := `DELETE FROM graph_edge WHERE from_id IN (SELECT id FROM graph_node WHERE ` + cond + `)
		OR to_id IN (SELECT id FROM graph_node WHERE ` + cond + `)`
	// Positional placeholders: the condition appears twice.
	if _, err := tx.ExecContext(ctx, edgeStmt, append(append([]any{}, args...), args...)...); err != nil {
		return 0, fmt.Errorf("failed to delete graph_edge: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM graph_node WHERE `+cond, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete graph_node: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n, nil
}

func (d *DB) CreateGraphEdge(ctx context.Context, create *store.GraphEdge) error {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `INSERT INTO graph_edge (from_id, to_id, rel_type, created_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (from_id, to_id, rel_type) DO NOTHING`
	if _, err := d.db.ExecContext(ctx, stmt, create.FromID, create.ToID, create.RelType, create.CreatedTs); err != nil {
		return fmt.Errorf("failed to create graph_edge: %w", err)
	}
	return nil
}

func (d *DB) ListGraphEdges(ctx context.Context, find *store.FindGraphEdge) ([]*store.GraphEdge, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.FromID != nil {
		where, args = append(where, "from_id = "+placeholder(len(args)+1)), append(args, *find.FromID)
	}
	if find.RelType != nil {
		where, args = append(where, "rel_type = "+placeholder(len(args)+1)), append(args, *find.RelType)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT from_id, to_id, rel_type, created_ts FROM graph_edge WHERE `+
		strings.Join(where, " AND ")+` ORDER BY created_ts ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list graph_edge: %w", err)
	}
	defer rows.Close()

	list := []*store.GraphEdge{}
	for rows.Next() {
		e := &store.GraphEdge{}
		if err := rows.Scan(&e.FromID, &e.ToID, &e.RelType, &e.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan graph_edge: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
