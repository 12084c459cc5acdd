package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/model"
)

// scriptedModel answers Complete calls from a fixed list of replies.
type scriptedModel struct {
	replies []string
	errs    []error
	calls   []model.Request
}

func (m *scriptedModel) Complete(_ context.Context, req model.Request) (string, error) {
	i := len(m.calls)
	m.calls = append(m.calls, req)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batch(n int) domain.CaptureBatch {
	b := make(domain.CaptureBatch, n)
	for i := range b {
		b[i] = domain.Image{Data: []byte{byte(i)}, MimeType: "image/jpeg"}
	}
	return b
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		replies   []string
		errs      []error
		want      domain.Category
		wantCalls int
	}{
		{name: "canonical label", replies: []string{"coding"}, want: domain.CategoryCoding, wantCalls: 1},
		{name: "quoted with period", replies: []string{`"Debugging".`}, want: domain.CategoryDebugging, wantCalls: 1},
		{name: "synonym", replies: []string{"quiz"}, want: domain.CategoryMultipleChoice, wantCalls: 1},
		{name: "extra words", replies: []string{"leetcode problem"}, want: domain.CategoryCoding, wantCalls: 1},
		{name: "secondary yes", replies: []string{"banana", "1. no\n2. no\n3. yes\n4. no"}, want: domain.CategoryDebugging, wantCalls: 2},
		{name: "secondary all no", replies: []string{"banana", "1. no\n2. no\n3. no\n4. no"}, want: domain.CategoryGeneral, wantCalls: 2},
		{name: "empty reply goes secondary", replies: []string{"", "1. no\n2. no\n3. no\n4. yes"}, want: domain.CategorySystemDesign, wantCalls: 2},
		{name: "primary error", errs: []error{errors.New("boom")}, want: domain.CategoryGeneral, wantCalls: 1},
		{name: "secondary error", replies: []string{"banana"}, errs: []error{nil, errors.New("boom")}, want: domain.CategoryGeneral, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{replies: tt.replies, errs: tt.errs}
			c := New(m, "fast/model", nil, discardLogger())

			got := c.Classify(context.Background(), batch(2), nil)
			assert.Equal(t, tt.want, got)
			assert.Len(t, m.calls, tt.wantCalls)
		})
	}
}

func TestClassifyRequestShape(t *testing.T) {
	m := &scriptedModel{replies: []string{"nonsense", "1. yes"}}
	c := New(m, "fast/model", nil, discardLogger())

	var statuses []string
	got := c.Classify(context.Background(), batch(3), func(s string) { statuses = append(statuses, s) })
	assert.Equal(t, domain.CategoryMultipleChoice, got)

	require.Len(t, m.calls, 2)
	primary, secondary := m.calls[0], m.calls[1]
	assert.Equal(t, "fast/model", primary.Model)
	assert.Equal(t, 0.1, primary.Temperature)
	assert.Equal(t, 10, primary.MaxTokens)
	assert.Equal(t, 0.95, primary.TopP)
	require.Len(t, primary.Images, 1)
	assert.Equal(t, []byte{0}, primary.Images[0].Data)
	assert.Contains(t, primary.Prompt, "ONLY respond with one of these exact words")

	assert.Equal(t, 50, secondary.MaxTokens)
	require.Len(t, secondary.Images, 1)
	assert.Equal(t, []byte{0}, secondary.Images[0].Data)
	assert.Contains(t, secondary.Prompt, "yes/no questions")

	assert.Equal(t, []string{"Running content detection...", "Running secondary content detection..."}, statuses)
}

func TestClassifyEmptyBatch(t *testing.T) {
	m := &scriptedModel{}
	c := New(m, "fast/model", nil, discardLogger())

	assert.Equal(t, domain.CategoryCoding, c.Classify(context.Background(), nil, nil))
	assert.Empty(t, m.calls)
}
