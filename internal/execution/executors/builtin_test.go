package executors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaclave-go/platform/internal/execution"
	"github.com/teaclave-go/platform/internal/taclerr"
)

func TestEchoExecutorReturnsMessageArgumentVerbatim(t *testing.T) {
	rt := execution.NewRuntime(nil)
	result, err := Registry()["echo"].Execute(context.Background(), map[string]string{"message": "Hello From Teaclave!"}, nil, rt)
	require.NoError(t, err)
	assert.Equal(t, "Hello From Teaclave!", result.Summary)
	assert.Empty(t, rt.Written(), "echo takes no input and writes no output file")
}

func TestEchoExecutorAcceptsPayloadArgumentAlias(t *testing.T) {
	rt := execution.NewRuntime(nil)
	result, err := Registry()["echo"].Execute(context.Background(), map[string]string{"payload": "Hello Teaclave!"}, nil, rt)
	require.NoError(t, err)
	assert.Equal(t, "Hello Teaclave!", result.Summary)
}

func TestEchoExecutorRequiresAnArgument(t *testing.T) {
	rt := execution.NewRuntime(nil)
	_, err := Registry()["echo"].Execute(context.Background(), nil, nil, rt)
	assert.Equal(t, taclerr.CategoryInvalidArgument, taclerr.Classify(err))
}

func TestOrderedSetIntersectComputesIntersection(t *testing.T) {
	rt := execution.NewRuntime(map[string][]byte{
		"set_a": []byte("alice\nbob\ncarol"),
		"set_b": []byte("bob\ncarol\ndave"),
	})
	result, err := Registry()["ordered_set_intersect"].Execute(context.Background(), nil, nil, rt)
	require.NoError(t, err)
	assert.Equal(t, "intersection size 2", result.Summary)
	assert.Equal(t, "bob\ncarol", string(rt.Written()["intersection"]))
}

func TestPasswordCheckDetectsBreach(t *testing.T) {
	rt := execution.NewRuntime(map[string][]byte{
		"breached_hashes": []byte("aaaa\nbbbb\ncccc"),
	})
	result, err := Registry()["password_check"].Execute(context.Background(), map[string]string{"candidate_hash": "bbbb"}, nil, rt)
	require.NoError(t, err)
	assert.Equal(t, "breached", result.Summary)
	assert.Equal(t, "breached", string(rt.Written()["result"]))
}

func TestStubExecutorsReturnNotImplemented(t *testing.T) {
	rt := execution.NewRuntime(nil)
	_, err := Registry()["gbdt_train"].Execute(context.Background(), nil, nil, rt)
	assert.Equal(t, taclerr.CategoryExecution, taclerr.Classify(err))
}
