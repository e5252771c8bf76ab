package llmclient

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeCall records one request seen by the fake, for assertions.
type FakeCall struct {
	Prompt string
	Input  any
}

// FakeClient replays a scripted sequence of responses for offline tests.
// Each GenerateJSON call consumes the next script entry; when the script
// runs out, the last entry repeats.
type FakeClient struct {
	mu     sync.Mutex
	script []FakeStep
	idx    int
	Calls  []FakeCall
}

// FakeStep is one scripted response: either JSON or an error.
type FakeStep struct {
	JSON string
	Err  error
}

func NewFakeClient(steps ...FakeStep) *FakeClient {
	return &FakeClient{script: steps}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(_ context.Context, prompt string, input any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Prompt: prompt, Input: input})
	if len(f.script) == 0 {
		return json.RawMessage(`{}`), nil
	}
	step := f.script[f.idx]
	if f.idx < len(f.script)-1 {
		f.idx++
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return json.RawMessage(step.JSON), nil
}

// CallCount returns the number of GenerateJSON invocations so far.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
