package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formwizard/pkg/testsupport"
)

func buildLotDocument(t *testing.T) *Document {
	t.Helper()
	doc, err := Build(context.Background(), testsupport.LotSchema(), WithTitle("lots"), WithServerURL("http://localhost:8080"))
	require.NoError(t, err)
	return doc
}

func TestBuild_DocumentsEveryRoute(t *testing.T) {
	doc := buildLotDocument(t)

	ops := doc.Operations()
	assert.Len(t, ops, len(Routes()))

	ids := make(map[string]bool, len(ops))
	for _, op := range ops {
		ids[op.ID] = true
	}
	for _, route := range Routes() {
		assert.True(t, ids[route.OperationID], "missing operation %s", route.OperationID)
	}

	item := doc.Spec().Paths.Find("/api/view/{table}/{id}")
	require.NotNil(t, item)
	require.NotNil(t, item.Patch)
	assert.Len(t, item.Patch.Parameters, 2)
	assert.NotNil(t, item.Patch.Responses.Status(http.StatusOK))
}

func TestBuild_TableComponents(t *testing.T) {
	doc := buildLotDocument(t)

	batch := doc.Spec().Components.Schemas[TableSchemaName("batch")]
	require.NotNil(t, batch)
	require.NotNil(t, batch.Value)
	assert.Contains(t, batch.Value.Properties, "lot_id")
	assert.Contains(t, batch.Value.Properties, "id")
	assert.Equal(t, []string{"batch_code"}, batch.Value.Extensions["x-business-keys"])

	assert.Equal(t, "lots", doc.Spec().Info.Title)
}

func TestParse_RoundTrip(t *testing.T) {
	doc := buildLotDocument(t)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(doc.JSON(), &generic))
	assert.Equal(t, "3.0.3", generic["openapi"])

	parsed, err := Parse(context.Background(), doc.JSON())
	require.NoError(t, err)
	assert.Equal(t, len(doc.Operations()), len(parsed.Operations()))
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(context.Background(), nil)
	assert.Error(t, err)
}

func TestValidateRecord(t *testing.T) {
	doc := buildLotDocument(t)

	tests := []struct {
		name      string
		table     string
		record    map[string]any
		expectErr error
	}{
		{
			name:   "declared columns",
			table:  "batch",
			record: map[string]any{"batch_code": "B-1", "lot_id": float64(1), "quantity": "12"},
		},
		{
			name:   "null foreign key",
			table:  "batch",
			record: map[string]any{"batch_code": "B-1", "lot_id": nil},
		},
		{
			name:      "unknown column",
			table:     "batch",
			record:    map[string]any{"batch_code": "B-1", "colour": "red"},
			expectErr: ErrInvalidRecord,
		},
		{
			name:      "foreign key must be an integer",
			table:     "batch",
			record:    map[string]any{"lot_id": "one"},
			expectErr: ErrInvalidRecord,
		},
		{
			name:      "unknown table",
			table:     "users",
			record:    map[string]any{},
			expectErr: ErrUnknownTable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := doc.ValidateRecord(tt.table, tt.record)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
