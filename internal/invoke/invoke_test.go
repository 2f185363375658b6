package invoke

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kutub-ai/cli/internal/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClient scripts per-model behavior for cascade tests.
type fakeClient struct {
	responses map[string]string // model -> response text
	errors    map[string]error  // model -> error
	embeds    map[string][]float32
	calls     []string
}

func (f *fakeClient) Generate(_ context.Context, req *ollama.GenerateRequest) (string, error) {
	f.calls = append(f.calls, req.Model)
	if err, ok := f.errors[req.Model]; ok {
		return "", err
	}
	return f.responses[req.Model], nil
}

func (f *fakeClient) GenerateStream(ctx context.Context, req *ollama.GenerateRequest, onChunk func(string)) error {
	text, err := f.Generate(ctx, req)
	if err != nil {
		return err
	}
	onChunk(text)
	return nil
}

func (f *fakeClient) Embed(_ context.Context, model, _ string) ([]float32, error) {
	f.calls = append(f.calls, model)
	if err, ok := f.errors[model]; ok {
		return nil, err
	}
	return f.embeds[model], nil
}

func newTestInvoker(client Client, logger *zap.Logger) *Invoker {
	return New(client, []string{"m1", "m2", "m3"}, []string{"v1"}, []string{"e1", "e2"}, 4, logger)
}

func TestCompleteOnlyLastModelSucceeds(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := &fakeClient{
		responses: map[string]string{"m3": "answer from m3"},
		errors: map[string]error{
			"m1": errors.New("boom"),
			"m2": errors.New("boom"),
		},
	}
	inv := newTestInvoker(client, zap.New(core))

	res, err := inv.Complete(context.Background(), TaskClassify, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "answer from m3", res.Text)
	assert.Equal(t, "m3", res.Model)
	assert.Equal(t, 3, res.Attempts)
	// Exactly N-1 failed attempts logged, none leaked into the result.
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, []string{"m1", "m2", "m3"}, client.calls)
}

func TestCompleteAllModelsFail(t *testing.T) {
	client := &fakeClient{errors: map[string]error{
		"m1": errors.New("a"), "m2": errors.New("b"), "m3": errors.New("c"),
	}}
	inv := newTestInvoker(client, nil)

	_, err := inv.Complete(context.Background(), TaskGenerateAnswer, "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
}

func TestCompleteEmptyResponseSkipped(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"m1": "   ", "m2": "ok"}}
	inv := newTestInvoker(client, nil)

	res, err := inv.Complete(context.Background(), TaskTranslate, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, "m2", res.Model)
}

func TestCompleteAcceptRejectionMovesToNextModel(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"m1": "bad", "m2": "good"}}
	inv := newTestInvoker(client, nil)

	res, err := inv.Complete(context.Background(), TaskCorrectText, "prompt",
		WithAccept(func(s string) error {
			if s == "bad" {
				return fmt.Errorf("rejected")
			}
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, "good", res.Text)
}

func TestEmbedDimensionEnforced(t *testing.T) {
	client := &fakeClient{embeds: map[string][]float32{
		"e1": {1, 2},       // wrong dim
		"e2": {1, 2, 3, 4}, // right dim
	}}
	inv := newTestInvoker(client, nil)

	vec, model, err := inv.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "e2", model)
	assert.Len(t, vec, 4)
}

func TestEmbedExhaustionIsTerminal(t *testing.T) {
	client := &fakeClient{errors: map[string]error{
		"e1": errors.New("x"), "e2": errors.New("y"),
	}}
	inv := newTestInvoker(client, nil)

	_, _, err := inv.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrAllModelsFailed)
}

func TestTranslateFallsBackToOriginal(t *testing.T) {
	client := &fakeClient{errors: map[string]error{
		"m1": errors.New("x"), "m2": errors.New("y"), "m3": errors.New("z"),
	}}
	inv := newTestInvoker(client, nil)

	out := inv.Translate(context.Background(), "ما هو موضوع الكتاب؟", "ar", "en")
	assert.Equal(t, "ما هو موضوع الكتاب؟", out)
}

func TestClassifyFallsBackToThematic(t *testing.T) {
	client := &fakeClient{errors: map[string]error{
		"m1": errors.New("x"), "m2": errors.New("y"), "m3": errors.New("z"),
	}}
	inv := newTestInvoker(client, nil)

	assert.Equal(t, TypeThematic, inv.Classify(context.Background(), "anything"))
}

func TestClassifyParsesVerboseResponse(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"m1": "The category is: Factual."}}
	inv := newTestInvoker(client, nil)

	assert.Equal(t, TypeFactual, inv.Classify(context.Background(), "when was it written?"))
}

func TestExpandKeywordsFallback(t *testing.T) {
	client := &fakeClient{errors: map[string]error{
		"m1": errors.New("x"), "m2": errors.New("y"), "m3": errors.New("z"),
	}}
	inv := newTestInvoker(client, nil)

	kws := inv.ExpandKeywords(context.Background(), "what does the author say about patience?")
	assert.Equal(t, []string{"what", "does", "author", "about", "patience"}, kws)
}

func TestSplitKeywordsArabicSeparators(t *testing.T) {
	kws := splitKeywords("الصبر، الحكمة، الأخلاق")
	assert.Equal(t, []string{"الصبر", "الحكمة", "الأخلاق"}, kws)
}

func TestSplitKeywordsCap(t *testing.T) {
	kws := splitKeywords("a, b, c, d, e, f, g")
	assert.Len(t, kws, 5)
}
