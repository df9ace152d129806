package protocol

import (
	"encoding/json"
	"testing"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventFrame(t *testing.T, name, payload string) Frame {
	t.Helper()
	return Frame{Type: FrameTypeEvent, Event: name, Payload: json.RawMessage(payload)}
}

// --- Frame constructors ---

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-1", "python_learning", map[string]string{"feedback": "x"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	assert.Equal(t, "python_learning", frame.Method)

	var params map[string]string
	require.NoError(t, json.Unmarshal(frame.Params, &params))
	assert.Equal(t, "x", params["feedback"])
}

func TestNewEventMarshal(t *testing.T) {
	frame, err := NewEvent(EventUserMessage, UserMessage{
		Message: "hi", UserID: "u-1", ThreadID: "t-1", MessageID: "m-1",
	}, 3)
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"event","event":"user_message","seq":3,
		  "payload":{"message":"hi","userId":"u-1","threadId":"t-1","messageId":"m-1"}}`,
		string(data))
}

func TestUserMessageJumpFields(t *testing.T) {
	data, err := json.Marshal(UserMessage{
		Message: "fixed", UserID: "u", ThreadID: "t", MessageID: "m",
		JumpTo: "True", Timestamp: "2025-06-01T08:30:00Z",
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"jump_to":"True"`)
	assert.Contains(t, string(data), `"timestamp":"2025-06-01T08:30:00Z"`)
}

// --- Decode ---

func TestDecodeStatus(t *testing.T) {
	ev, err := Decode(eventFrame(t, EventServerStatus,
		`{"status":"waiting_for_input","step":"ask_for_jql_verification","current_interruption":"ask_for_jql_verification"}`))
	require.NoError(t, err)

	st, ok := ev.(*StatusEvent)
	require.True(t, ok)
	assert.Equal(t, domain.StatusWaitingForInput, st.Status)
	assert.Equal(t, "ask_for_jql_verification", st.Stage())
	assert.Equal(t, LooseString("ask_for_jql_verification"), st.CurrentInterruption)
}

func TestDecodeStatusStageFallsBackToStatus(t *testing.T) {
	ev, err := Decode(eventFrame(t, EventServerStatus, `{"status":"connected"}`))
	require.NoError(t, err)
	assert.Equal(t, "connected", ev.(*StatusEvent).Stage())
}

func TestDecodeStatusLooseStep(t *testing.T) {
	ev, err := Decode(eventFrame(t, EventServerStatus, `{"status":"processing","step":["generate_python_code"]}`))
	require.NoError(t, err)
	assert.Equal(t, `["generate_python_code"]`, ev.(*StatusEvent).Stage())
}

func TestDecodeStatusRequiresStatus(t *testing.T) {
	_, err := Decode(eventFrame(t, EventServerStatus, `{"step":"run_jql"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeMessage(t *testing.T) {
	ev, err := Decode(eventFrame(t, EventServerMessage, `{
		"messageId":"m-9","message":"Here is the chart","timestamp":"2025-06-01T08:30:00Z",
		"node":"execute_python_code","is_mini":true,"summary":"short",
		"plots":[{"filename":"plot.png","type":"image/png","data":"iVBOR"}],
		"echarts_options":{"series":[]}}`))
	require.NoError(t, err)

	msg := ev.(*MessageEvent)
	assert.Equal(t, "m-9", msg.MessageID)
	assert.True(t, msg.IsMini)
	require.Len(t, msg.Plots, 1)
	assert.Equal(t, "data:image/png;base64,iVBOR", msg.Plots[0].DataURL())
	assert.Contains(t, msg.EChartsOptions, "series")
}

func TestDecodeResults(t *testing.T) {
	ev, err := Decode(eventFrame(t, EventServerResults,
		`{"results":[{"type":"image","data":"https://x/p.png","title":"Plot"},{"type":"data","data":[{"a":1}],"title":"Rows"}]}`))
	require.NoError(t, err)

	res := ev.(*ResultsEvent)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "https://x/p.png", res.Results[0].DataString())
	assert.JSONEq(t, `[{"a":1}]`, res.Results[1].DataString())
}

func TestDecodeLearning(t *testing.T) {
	for _, name := range []string{EventLearningQueued, EventLearningGenerated} {
		ev, err := Decode(eventFrame(t, name, `{"learning_id":"l-1","timestamp":"14:00:00"}`))
		require.NoError(t, err)
		assert.Equal(t, name, ev.EventName())
		assert.Equal(t, "l-1", ev.(*LearningEvent).LearningID)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(eventFrame(t, "mystery", `{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode(eventFrame(t, EventServerMessage, `null`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(eventFrame(t, EventServerMessage, `{"message": 5}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(Frame{Type: FrameTypeResponse, ID: "x"})
	assert.ErrorIs(t, err, ErrNotEvent)
}

func TestLooseString(t *testing.T) {
	var v struct {
		A LooseString `json:"a"`
		B LooseString `json:"b"`
		C LooseString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"run_jql","b":["x",1],"c":null}`), &v))
	assert.Equal(t, LooseString("run_jql"), v.A)
	assert.Equal(t, LooseString(`["x",1]`), v.B)
	assert.Equal(t, LooseString(""), v.C)
}
