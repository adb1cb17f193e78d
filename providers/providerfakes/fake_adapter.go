// Package providerfakes provides a configurable Adapter fake for handler
// and flow tests.
package providerfakes

import (
	"context"
	"sync"

	"github.com/ledgerops/go-token-broker/envelope"
	"github.com/ledgerops/go-token-broker/providers"
)

// FakeAdapter implements providers.Adapter with stubbable behavior and
// call recording.
type FakeAdapter struct {
	Provider providers.Provider

	StartAuthStub func(state string) (string, string, error)
	ExchangeStub  func(ctx context.Context, code string, cb providers.Callback) (envelope.Envelope, error)
	RefreshStub   func(ctx context.Context, refreshToken string) (envelope.Envelope, error)

	mu            sync.Mutex
	startCalls    []string
	exchangeCalls []providers.Callback
	refreshCalls  []string
}

var _ providers.Adapter = (*FakeAdapter)(nil)

func New(provider providers.Provider) *FakeAdapter {
	return &FakeAdapter{Provider: provider}
}

func (f *FakeAdapter) Name() providers.Provider { return f.Provider }

func (f *FakeAdapter) StartAuth(state string) (string, string, error) {
	f.mu.Lock()
	f.startCalls = append(f.startCalls, state)
	f.mu.Unlock()
	if f.StartAuthStub != nil {
		return f.StartAuthStub(state)
	}
	return "https://provider.example.com/authorize?state=" + state, "", nil
}

func (f *FakeAdapter) Exchange(ctx context.Context, code string, cb providers.Callback) (envelope.Envelope, error) {
	f.mu.Lock()
	f.exchangeCalls = append(f.exchangeCalls, cb)
	f.mu.Unlock()
	if f.ExchangeStub != nil {
		return f.ExchangeStub(ctx, code, cb)
	}
	return envelope.Envelope{Provider: string(f.Provider), AccessToken: "fake-access"}, nil
}

func (f *FakeAdapter) Refresh(ctx context.Context, refreshToken string) (envelope.Envelope, error) {
	f.mu.Lock()
	f.refreshCalls = append(f.refreshCalls, refreshToken)
	f.mu.Unlock()
	if f.RefreshStub != nil {
		return f.RefreshStub(ctx, refreshToken)
	}
	return envelope.Envelope{Provider: string(f.Provider), AccessToken: "fake-access", RefreshToken: "fake-rotated"}, nil
}

func (f *FakeAdapter) StartAuthCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.startCalls)
}

func (f *FakeAdapter) ExchangeCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exchangeCalls)
}

func (f *FakeAdapter) ExchangeArgsForCall(i int) providers.Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls[i]
}

func (f *FakeAdapter) RefreshCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshCalls)
}

func (f *FakeAdapter) RefreshArgsForCall(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls[i]
}
