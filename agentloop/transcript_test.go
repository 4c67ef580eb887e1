package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/modelservice"
)

func TestTranscriptAppendAndSnapshot(t *testing.T) {
	tr := NewTranscript(modelservice.UserTurn("start"))
	assert.Equal(t, 1, tr.Len())

	tr.Append(modelservice.ModelTurn(modelservice.TextPart("reply")))
	assert.Equal(t, 2, tr.Len())

	turns := tr.Turns()
	require.Len(t, turns, 2)
	turns[0] = modelservice.Turn{}
	assert.Equal(t, modelservice.RoleUser, tr.Turns()[0].Role, "snapshot mutation must not leak back")
}

func TestTranscriptLast(t *testing.T) {
	tr := NewTranscript()
	_, ok := tr.Last()
	assert.False(t, ok)

	tr.Append(modelservice.UserTurn("a"), modelservice.ModelTurn(modelservice.TextPart("b")))
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, modelservice.RoleModel, last.Role)
}
