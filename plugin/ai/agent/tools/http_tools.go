package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

// maxResponseBytes bounds how much of a response body a tool reads.
const maxResponseBytes = 1 << 20

// APIClient calls a JSON REST API shaped like JSONPlaceholder
// (users, posts, comments).
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a client; a nil client uses a 15s-timeout default.
func NewAPIClient(baseURL string, client *http.Client) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Do sends a request and returns the JSON body. Non-2xx statuses become *HTTPStatusError.
func (c *APIClient) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, aierrors.InvalidArgument("request body is not serializable: " + err.Error())
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncateBody(data)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(data) {
		return nil, errors.Errorf("%s %s returned non-JSON body", method, path)
	}
	return data, nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// HTTPTools returns the REST tools backed by client.
func HTTPTools(client *APIClient) []Tool {
	return []Tool{
		NewFuncTool(Definition{
			Name:        "get_user",
			Description: "Fetch a user's profile by id",
			Parameters: []Parameter{
				{Name: "user_id", Type: TypeInteger, Required: true, Description: "numeric user id"},
			},
		}, func(ctx context.Context, args map[string]any) (any, error) {
			return client.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(ArgString(args["user_id"])), nil, nil)
		}),
		NewFuncTool(Definition{
			Name:        "get_user_posts",
			Description: "List all posts written by a user; each post has id, userId, title and body",
			Parameters: []Parameter{
				{Name: "user_id", Type: TypeInteger, Required: true, Description: "numeric user id"},
			},
		}, func(ctx context.Context, args map[string]any) (any, error) {
			return client.Do(ctx, http.MethodGet, "/posts", url.Values{"userId": {ArgString(args["user_id"])}}, nil)
		}),
		NewFuncTool(Definition{
			Name:        "get_post_comments",
			Description: "List the comments of a post; each comment has id, postId, name, email and body",
			Parameters: []Parameter{
				{Name: "post_id", Type: TypeInteger, Required: true, Description: "numeric post id"},
			},
		}, func(ctx context.Context, args map[string]any) (any, error) {
			return client.Do(ctx, http.MethodGet, "/posts/"+url.PathEscape(ArgString(args["post_id"]))+"/comments", nil, nil)
		}),
		NewFuncTool(Definition{
			Name:        "create_post",
			Description: "Create a new post for a user",
			Parameters: []Parameter{
				{Name: "user_id", Type: TypeInteger, Required: true, Description: "author user id"},
				{Name: "title", Type: TypeString, Required: true},
				{Name: "body", Type: TypeString, Required: true},
			},
			Mutating: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			return client.Do(ctx, http.MethodPost, "/posts", nil, map[string]any{
				"userId": args["user_id"],
				"title":  args["title"],
				"body":   args["body"],
			})
		}),
		NewFuncTool(Definition{
			Name:        "delete_post",
			Description: "Delete a post by id",
			Parameters: []Parameter{
				{Name: "post_id", Type: TypeInteger, Required: true, Description: "numeric post id"},
			},
			Mutating: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			return client.Do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(ArgString(args["post_id"])), nil, nil)
		}),
	}
}
