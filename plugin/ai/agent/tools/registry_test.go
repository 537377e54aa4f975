package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewMockTool("get_user", `{}`, Parameter{Name: "user_id", Type: TypeInteger, Required: true})))
	require.NoError(t, r.Register(NewMockTool("create_post", `{}`).Mutating()))

	assert.Equal(t, []string{"create_post", "get_user"}, r.Names())
	assert.True(t, r.Has("get_user"))

	_, err := r.Get("get_weather")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))

	err = r.Register(NewMockTool("get_user", `{}`))
	require.Error(t, err)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument))

	desc := r.Describe()
	assert.Contains(t, desc, "- get_user: mock get_user")
	assert.Contains(t, desc, "user_id (integer, required)")
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{name: "valid", def: Definition{Name: "get_user", Description: "d", Parameters: []Parameter{{Name: "id", Type: TypeInteger}}}},
		{name: "blank name", def: Definition{Description: "d"}, wantErr: true},
		{name: "bad name", def: Definition{Name: "Get User", Description: "d"}, wantErr: true},
		{name: "no description", def: Definition{Name: "get_user"}, wantErr: true},
		{name: "bad type", def: Definition{Name: "x", Description: "d", Parameters: []Parameter{{Name: "id", Type: "uuid"}}}, wantErr: true},
		{name: "duplicate parameter", def: Definition{Name: "x", Description: "d", Parameters: []Parameter{
			{Name: "id", Type: TypeString}, {Name: "id", Type: TypeString},
		}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(tt.def)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateArgs(t *testing.T) {
	def := Definition{Name: "create_post", Description: "d", Parameters: []Parameter{
		{Name: "user_id", Type: TypeInteger, Required: true},
		{Name: "title", Type: TypeString, Required: true},
		{Name: "draft", Type: TypeBoolean},
	}}

	assert.NoError(t, ValidateArgs(def, map[string]any{"user_id": float64(1), "title": "hi"}))
	assert.NoError(t, ValidateArgs(def, map[string]any{"user_id": int64(1), "title": "hi", "draft": true}))

	err := ValidateArgs(def, map[string]any{"user_id": 1.5, "extra": 1})
	require.Error(t, err)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument))
	assert.Contains(t, err.Error(), "user_id must be integer")
	assert.Contains(t, err.Error(), "title is required")
	assert.Contains(t, err.Error(), "extra is not a parameter")

	assert.Equal(t, []string{"title"}, MissingRequired(def, map[string]any{"user_id": 1, "title": ""}))
}
