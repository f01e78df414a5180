package agent

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Pipeline stage names used for fault injection.
const (
	StageTicketService = "TicketService"
	StageClassifier    = "Classifier"
	StageRouter        = "Router"
	StageDatabase      = "Database"
)

// faultProbability is the per-stage chance of an injected failure when
// chaos mode is on.
const faultProbability = 0.3

var faultMessages = []string{
	"Simulated network timeout",
	"Service temporarily unavailable",
	"Database connection dropped",
	"Rate limit exceeded",
	"Internal processing error",
}

// FaultError is an injected failure. It propagates to the caller without
// leaving an audit entry, distinguishing drills from real failures.
type FaultError struct {
	Stage   string
	Message string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("injected fault in %s: %s", e.Stage, e.Message)
}

// faultInjector rolls per-stage failures. The generator is injectable so
// tests can replay a known sequence.
type faultInjector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newFaultInjector(rng *rand.Rand) *faultInjector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &faultInjector{rng: rng}
}

// roll returns a FaultError for the stage with faultProbability, nil
// otherwise.
func (f *faultInjector) roll(stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rng.Float64() < faultProbability {
		return &FaultError{Stage: stage, Message: faultMessages[f.rng.Intn(len(faultMessages))]}
	}
	return nil
}
