// File: internal/executor/codec_test.go
package executor_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/voicepilot/internal/executor"
)

func TestDecodeEnvelope(t *testing.T) {
	a, err := executor.Unmarshal([]byte(`{"kind":"fill_input","payload":{"target":"title","value":"Bio","route":"/courses"}}`))
	require.NoError(t, err)
	assert.Equal(t, executor.FillInput{Target: "title", Value: "Bio", Route: "/courses"}, a)
	assert.Equal(t, "/courses", executor.RouteHintOf(a))
	assert.Equal(t, "title", executor.TargetOf(a))

	a, err = executor.Unmarshal([]byte(`{"kind":"navigate","payload":{"route":"/sessions"}}`))
	require.NoError(t, err)
	assert.Empty(t, executor.RouteHintOf(a), "navigate carries no route hint")
}

func TestWorkflowEnvelopeKeepsStepFlags(t *testing.T) {
	two := 2
	wf := executor.RunWorkflow{Name: "enroll", Steps: []executor.Step{
		{Action: executor.Navigate{Route: "/courses"}},
		{Action: executor.SwitchTab{Target: "create"}, WaitForLoad: true},
		{Action: executor.SelectOption{Target: "level", Index: &two}},
	}}

	data, err := executor.Marshal(wf)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"run_workflow"`)
	assert.Contains(t, string(data), `"wait_for_load":true`)

	back, err := executor.Unmarshal(data)
	require.NoError(t, err)
	if diff := cmp.Diff(executor.Action(wf), back); diff != "" {
		t.Errorf("workflow changed on the wire (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsBadEnvelopes(t *testing.T) {
	_, err := executor.Unmarshal([]byte(`{"kind":"teleport","payload":{}}`))
	assert.ErrorIs(t, err, executor.ErrUnknownKind)

	_, err = executor.Unmarshal([]byte(`{"payload":{"target":"x"}}`))
	assert.ErrorIs(t, err, executor.ErrMalformed)

	_, err = executor.Unmarshal([]byte(`{"kind":"click","payload":{"target":5}}`))
	assert.ErrorIs(t, err, executor.ErrMalformed)

	_, err = executor.Unmarshal([]byte(`not json`))
	assert.ErrorIs(t, err, executor.ErrMalformed)

	_, err = executor.Unmarshal([]byte(`{"kind":"run_workflow","payload":{"steps":[{"kind":"nope"}]}}`))
	assert.ErrorIs(t, err, executor.ErrMalformed)
	assert.Contains(t, err.Error(), "nope")

	_, err = executor.Marshal(nil)
	assert.ErrorIs(t, err, executor.ErrMalformed)
}
