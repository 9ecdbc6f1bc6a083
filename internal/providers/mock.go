package providers

import (
	"context"
	"fmt"
	"sync"
)

const MockName = "mock"

// MockCall records one Generate invocation.
type MockCall struct {
	Model  string
	Prompt string
	Images int
}

// MockVision is a VisionModel for testing. Each call consumes the next entry
// of Responses/Errors; when they run out the last entry repeats.
type MockVision struct {
	mu        sync.Mutex
	Responses []string
	Errors    []error
	calls     []MockCall
}

// NewMockVision returns a mock that answers every call with response.
func NewMockVision(response string) *MockVision {
	return &MockVision{Responses: []string{response}}
}

// Name returns the backend identifier.
func (m *MockVision) Name() string {
	return MockName
}

// Generate returns the scripted response for this call.
func (m *MockVision) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.calls)
	m.calls = append(m.calls, MockCall{Model: req.Model, Prompt: req.Prompt, Images: len(req.Images)})

	if len(m.Errors) > 0 {
		if err := m.Errors[min(n, len(m.Errors)-1)]; err != nil {
			return "", err
		}
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("mock: no response scripted")
	}
	return m.Responses[min(n, len(m.Responses)-1)], nil
}

// Calls returns a copy of the recorded calls.
func (m *MockVision) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// MockOCR is an OCREngine for testing. Pages maps the image bytes to the
// text returned for them; unknown images return Default.
type MockOCR struct {
	mu      sync.Mutex
	Pages   map[string]string
	Default string
	Err     error
	calls   int
}

// Name returns the engine identifier.
func (m *MockOCR) Name() string {
	return MockName
}

// Recognize returns the scripted text for image.
func (m *MockOCR) Recognize(ctx context.Context, image []byte, page int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return "", m.Err
	}
	if text, ok := m.Pages[string(image)]; ok {
		return text, nil
	}
	return m.Default, nil
}

// Calls returns the number of Recognize invocations.
func (m *MockOCR) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var (
	_ VisionModel = (*MockVision)(nil)
	_ OCREngine   = (*MockOCR)(nil)
)
