package synth

import (
	"errors"
	"sync"
)

// AckTable correlates speak requests sent to the panel with the tts_done /
// tts_error frames it replies with.
type AckTable struct {
	mu      sync.Mutex
	pending map[string]chan error
}

func NewAckTable() *AckTable {
	return &AckTable{pending: make(map[string]chan error)}
}

func (t *AckTable) register(utteranceID string) chan error {
	ch := make(chan error, 1)
	t.mu.Lock()
	t.pending[utteranceID] = ch
	t.mu.Unlock()
	return ch
}

func (t *AckTable) drop(utteranceID string) {
	t.mu.Lock()
	delete(t.pending, utteranceID)
	t.mu.Unlock()
}

// Resolve completes the waiting speak call. errMsg == "" means success.
// Unknown utterance IDs (late acks after timeout or cancel) are ignored.
func (t *AckTable) Resolve(utteranceID, errMsg string) {
	t.mu.Lock()
	ch, ok := t.pending[utteranceID]
	if ok {
		delete(t.pending, utteranceID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if errMsg == "" {
		ch <- nil
	} else {
		ch <- errors.New(errMsg)
	}
}
