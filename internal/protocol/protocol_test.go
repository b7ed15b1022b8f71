package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/emotion"
)

func TestDecodeStartInterview(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"start_interview","role":" Software Engineer ","num_questions":3,"token":"alice"}`))
	require.NoError(t, err)
	start, ok := msg.(StartInterview)
	require.True(t, ok)
	assert.Equal(t, "Software Engineer", start.Role)
	assert.Equal(t, 3, start.NumQuestions)
	assert.Equal(t, "alice", start.Token)
	assert.Equal(t, TypeStartInterview, start.Kind())
}

func TestDecodeValidationErrors(t *testing.T) {
	cases := map[string]string{
		`not json`: "invalid JSON message",
		`{"role":"x"}`: "missing message type",
		`{"type":"start_interview"}`: "start_interview: role is required",
		`{"type":"start_interview","role":"x","num_questions":"three"}`: "start_interview: malformed fields",
		`{"type":"start_interview","role":"x","num_questions":-2}`: "start_interview: num_questions must be positive",
		`{"type":"frame"}`: "frame: image_data is required",
		`{"type":"end_question"}`: "end_question: answer_text is required",
		`{"type":"resume_interview"}`: "resume_interview: session_id is required",
		`{"type":"start_interview","role":"x","num_questions":2}`: "start_interview: token is required",
		`{"type":"start_interview","role":"x","token":"  "}`: "start_interview: token is required",
		`{"type":"resume_interview","session_id":"s-1"}`: "resume_interview: token is required",
	}
	for raw, want := range cases {
		_, err := Decode([]byte(raw))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), raw)
		assert.Equal(t, want, verr.Error(), raw)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ping"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestDecodeEndQuestionAllowsEmptyAnswer(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"end_question","answer_text":""}`))
	require.NoError(t, err)
	assert.Equal(t, "", msg.(EndQuestion).Answer())

	msg, err = Decode([]byte(`{"type":"end_interview"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeEndInterview, msg.Kind())
}

func TestOutboundFieldNames(t *testing.T) {
	b, err := json.Marshal(NewSessionStarted("s-1", []string{"a", "b"}, 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"session_started","session_id":"s-1","questions":["a","b"],"current_question":0,"total_questions":2}`, string(b))

	b, err = json.Marshal(NewFrameProcessed(map[emotion.Label]float64{emotion.Happy: 0.75, emotion.Neutral: 0.25}, 1.5, 3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"frame_processed","results":[{"emotion":"Happy","confidence":0.75},{"emotion":"Neutral","confidence":0.25}],"elapsed_time":1.5,"frame_count":3}`, string(b))

	b, err = json.Marshal(NewFrameProcessed(nil, 0, 1))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"results":[]`)

	qc := NewQuestionCompleted(analysis.QuestionAnalysis{Ordinal: 2, Aggregate: analysis.Compute(nil, 0)}, nil)
	b, err = json.Marshal(qc)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "question_completed", decoded["type"])
	assert.Equal(t, float64(2), decoded["question_index"])
	assert.Nil(t, decoded["next_question_index"])
	assert.Contains(t, decoded, "emotion_analysis")

	b, err = json.Marshal(NewError("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"boom"}`, string(b))
}

func TestMessageTypeClassification(t *testing.T) {
	assert.True(t, TypeFrame.IsRequest())
	assert.True(t, TypeFrame.RequiresSession())
	assert.False(t, TypeStartInterview.RequiresSession())
	assert.True(t, TypeError.IsResponse())
	assert.False(t, MessageType("ping").IsRequest())
}

func TestEncodeRoundTrip(t *testing.T) {
	answer := "I led the migration."
	for _, m := range []Inbound{
		StartInterview{Role: "Data Scientist", NumQuestions: 4, Token: "bob"},
		ResumeInterview{SessionID: "s-1", Token: "bob"},
		Frame{ImageData: "aGVsbG8="},
		EndQuestion{AnswerText: &answer},
		EndInterview{},
	} {
		data, err := Encode(m)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, m.Kind(), got.Kind())
	}
}
