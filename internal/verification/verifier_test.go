package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studylock-backend/internal/ai"
	"studylock-backend/internal/logging"
)

type fakeModel struct {
	reply string
	err   error
	calls []ai.ChatRequest
}

func (m *fakeModel) Complete(_ context.Context, req ai.ChatRequest) (string, error) {
	m.calls = append(m.calls, req)
	return m.reply, m.err
}

type fakeFetcher struct {
	data        []byte
	contentType string
	err         error
	refs        []string
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, string, error) {
	f.refs = append(f.refs, ref)
	return f.data, f.contentType, f.err
}

func newVerifier(t *testing.T, m Model, f Fetcher) *Verifier {
	t.Helper()
	v, err := New(m, f, logging.Discard())
	require.NoError(t, err)
	return v
}

func userText(t *testing.T, req ai.ChatRequest) (string, []ai.ContentPart) {
	t.Helper()
	require.Len(t, req.Messages, 2)
	parts, ok := req.Messages[1].Content.([]ai.ContentPart)
	require.True(t, ok)
	require.NotEmpty(t, parts)
	return parts[0].Text, parts
}

func TestVerify_GenericStatementIsRejected(t *testing.T) {
	m := &fakeModel{reply: `{"approved":true,"confidence":99}`}
	v := newVerifier(t, m, nil)

	res, err := v.Verify(context.Background(), Request{TaskTitle: "Finish essay", ProofText: "I did it"})
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, 0.0, res.Confidence)
	assert.NotEmpty(t, res.Concerns)
	assert.Empty(t, m.calls, "vague text-only proof never reaches the model")
}

func TestVerify_ShortSpecificProofReachesModel(t *testing.T) {
	m := &fakeModel{reply: `{"approved":true,"confidence":90,"feedback":"Exercises match the chapter","matchedKeywords":["chapter 5"],"concerns":[]}`}
	v := newVerifier(t, m, nil)

	res, err := v.Verify(context.Background(), Request{TaskTitle: "Math Chapter 5", ProofText: "Solved Chapter-5 exercises"})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, 90.0, res.Confidence)

	require.Len(t, m.calls, 1)
	text, _ := userText(t, m.calls[0])
	assert.Contains(t, text, "Solved Chapter-5 exercises")
}

func TestVerify_TextOnlyProofUsesStrictPrompt(t *testing.T) {
	m := &fakeModel{reply: `{"approved":true,"confidence":82,"feedback":"Specific essay details","matchedKeywords":["essay","Hamlet"],"concerns":[]}`}
	v := newVerifier(t, m, nil)

	res, err := v.Verify(context.Background(), Request{
		TaskTitle: "Finish essay",
		TaskType:  "assignment",
		ProofText: "Wrote the final 1500 word essay on Hamlet and submitted it to the portal",
	})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, 82.0, res.Confidence)
	assert.Equal(t, []string{"essay", "Hamlet"}, res.MatchedKeywords)

	require.Len(t, m.calls, 1)
	call := m.calls[0]
	assert.InDelta(t, 0.1, call.Temperature, 1e-9)
	assert.Equal(t, "system", call.Messages[0].Role)
	assert.Contains(t, call.Messages[0].Content, "STRICT")

	text, parts := userText(t, call)
	assert.Len(t, parts, 1)
	assert.Contains(t, text, "Title: Finish essay")
	assert.Contains(t, text, "No image was uploaded")
}

func TestVerify_LowConfidenceApprovalIsRejected(t *testing.T) {
	m := &fakeModel{reply: `{"approved":true,"confidence":55,"feedback":"probably","matchedKeywords":[],"concerns":[]}`}
	v := newVerifier(t, m, nil)

	res, err := v.Verify(context.Background(), Request{
		TaskTitle: "Study for Physics Exam",
		ProofText: "Reviewed kinematics notes and solved ten practice problems",
	})
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Feedback, "Confidence too low (55%)")
	assert.Contains(t, res.Concerns, lowConfidenceConcern)
}

func TestVerify_UnparseableVerdictIsSafeRejection(t *testing.T) {
	m := &fakeModel{reply: "Looks great, approved!"}
	v := newVerifier(t, m, nil)

	res, err := v.Verify(context.Background(), Request{
		TaskTitle: "Finish Coding Project",
		ProofText: "Implemented the login page and pushed commit 4f2a to the repo",
	})
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, 0.0, res.Confidence)
	assert.NotEmpty(t, res.Concerns)
}

func TestVerify_ImageIsAttached(t *testing.T) {
	m := &fakeModel{reply: `{"approved":true,"confidence":90,"feedback":"Chapter 5 worked","matchedKeywords":["chapter 5"],"concerns":[]}`}
	f := &fakeFetcher{data: pngBytes(t, 8, 8), contentType: "image/png"}
	v := newVerifier(t, m, f)

	res, err := v.Verify(context.Background(), Request{
		TaskTitle: "Complete Math Chapter 5",
		ProofURL:  "proofs/u/t/1700000000000.png",
	})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, []string{"proofs/u/t/1700000000000.png"}, f.refs)

	require.Len(t, m.calls, 1)
	text, parts := userText(t, m.calls[0])
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Contains(t, parts[1].ImageURL.URL, "data:image/png;base64,")
	assert.Contains(t, text, "Image URL provided: Yes")
	assert.Contains(t, text, "CAREFULLY analyze the image content")
}

func TestVerify_FetchFailureDegradesToText(t *testing.T) {
	t.Run("text still goes to the model with a stricter note", func(t *testing.T) {
		m := &fakeModel{reply: `{"approved":false,"confidence":40,"feedback":"cannot see work"}`}
		f := &fakeFetcher{err: errors.New("404")}
		v := newVerifier(t, m, f)

		res, err := v.Verify(context.Background(), Request{
			TaskTitle: "Write Biology Essay",
			ProofText: "Finished the 3 page essay on cell respiration with citations",
			ProofURL:  "https://cdn.example.com/proofs/a/b/c.jpg",
		})
		require.NoError(t, err)
		assert.False(t, res.Approved)

		require.Len(t, m.calls, 1)
		text, parts := userText(t, m.calls[0])
		assert.Len(t, parts, 1)
		assert.Contains(t, text, "could not be analyzed")
	})

	t.Run("no text is rejected without the model", func(t *testing.T) {
		m := &fakeModel{reply: `{"approved":true,"confidence":95}`}
		f := &fakeFetcher{err: errors.New("timeout")}
		v := newVerifier(t, m, f)

		res, err := v.Verify(context.Background(), Request{
			TaskTitle: "Write Biology Essay",
			ProofURL:  "https://cdn.example.com/proofs/a/b/c.jpg",
		})
		require.NoError(t, err)
		assert.False(t, res.Approved)
		assert.Empty(t, m.calls)
	})
}

func TestVerify_UpstreamErrorsPropagate(t *testing.T) {
	for _, want := range []error{ai.ErrRateLimited, ai.ErrServiceUnavailable, ai.ErrConfiguration} {
		m := &fakeModel{err: want}
		v := newVerifier(t, m, nil)
		_, err := v.Verify(context.Background(), Request{
			TaskTitle: "Finish essay",
			ProofText: "Drafted and proofread all five sections of the essay",
		})
		assert.ErrorIs(t, err, want)
	}
}

func TestVerify_TitleRequired(t *testing.T) {
	v := newVerifier(t, &fakeModel{}, nil)
	_, err := v.Verify(context.Background(), Request{TaskTitle: "  ", ProofText: "something specific and long enough"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
