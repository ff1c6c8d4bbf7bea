package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perplext/bountyscope/internal/testutil"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
)

// fakeRunner returns a canned result after an optional delay
type fakeRunner struct {
	name    string
	delay   time.Duration
	result  Result
	panicV  any
	started chan struct{}
	gotCtx  context.Context
}

func (f *fakeRunner) Name() string { return f.name }

func (f *fakeRunner) Run(ctx context.Context) Result {
	f.gotCtx = ctx
	if f.started != nil {
		close(f.started)
	}
	if f.panicV != nil {
		panic(f.panicV)
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return Result{Platform: f.name, State: StateFailed, Err: ctx.Err()}
	}
	res := f.result
	res.Platform = f.name
	return res
}

func doneResult(n int) Result {
	programs := make([]models.CanonicalProgram, n)
	for i := range programs {
		programs[i] = models.CanonicalProgram{Handle: "p", Assets: models.NewAssets()}
	}
	return Result{State: StateDone, Programs: programs}
}

func TestOrchestratorIsolatesFailure(t *testing.T) {
	sink := testutil.NewRecordingSink()
	runners := []Runner{
		&fakeRunner{name: "hackerone", delay: 20 * time.Millisecond, result: doneResult(2)},
		&fakeRunner{name: "bugcrowd", result: Result{State: StateFailed, Err: bserrors.SchemaError("engagements", "bugcrowd")}},
		&fakeRunner{name: "yeswehack", delay: 10 * time.Millisecond, result: doneResult(1)},
		&fakeRunner{name: "intigriti", delay: 30 * time.Millisecond, result: doneResult(3)},
	}

	report := NewOrchestrator(sink, nil).Run(context.Background(), runners)

	require.Len(t, report.Results, 4)
	assert.Len(t, report.Done(), 3)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "bugcrowd", report.Failed()[0].Platform)
	assert.Equal(t, 6, report.Programs())

	// Results keep input order regardless of completion order
	for i, name := range []string{"hackerone", "bugcrowd", "yeswehack", "intigriti"} {
		assert.Equal(t, name, report.Results[i].Platform)
	}

	// Siblings never saw a cancelled context
	for _, r := range runners {
		assert.NoError(t, r.(*fakeRunner).gotCtx.Err())
	}

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4 platforms failed")
	assert.Contains(t, bserrors.GetContext(err), "bugcrowd")

	for _, name := range []string{"hackerone", "bugcrowd", "yeswehack", "intigriti"} {
		assert.Equal(t, "pending", sink.States(name)[0])
	}
}

func TestOrchestratorRecoversPanic(t *testing.T) {
	sink := testutil.NewRecordingSink()
	runners := []Runner{
		&fakeRunner{name: "hackerone", panicV: "nil map write"},
		&fakeRunner{name: "yeswehack", delay: 5 * time.Millisecond, result: doneResult(1)},
	}

	report := NewOrchestrator(sink, nil).Run(context.Background(), runners)

	assert.Equal(t, StateFailed, report.Results[0].State)
	assert.True(t, bserrors.Is(report.Results[0].Err, bserrors.ErrorTypeInternal))
	assert.Contains(t, report.Results[0].Err.Error(), "nil map write")
	assert.Equal(t, StateDone, report.Results[1].State)
	assert.Equal(t, []string{"pending", "failed"}, sink.States("hackerone"))
}

func TestOrchestratorRunsConcurrently(t *testing.T) {
	// Each runner waits for all others to start; a sequential orchestrator
	// would block until the timeout.
	const n = 4
	var wg sync.WaitGroup
	wg.Add(n)
	allStarted := make(chan struct{})
	go func() {
		wg.Wait()
		close(allStarted)
	}()

	runners := make([]Runner, n)
	for i := range runners {
		runners[i] = &barrierRunner{name: string(rune('a' + i)), wg: &wg, allStarted: allStarted}
	}

	report := NewOrchestrator(nil, nil).Run(context.Background(), runners)
	assert.Len(t, report.Done(), n)
	assert.NoError(t, report.Err())
}

type barrierRunner struct {
	name       string
	wg         *sync.WaitGroup
	allStarted chan struct{}
}

func (b *barrierRunner) Name() string { return b.name }

func (b *barrierRunner) Run(ctx context.Context) Result {
	b.wg.Done()
	select {
	case <-b.allStarted:
		return Result{Platform: b.name, State: StateDone}
	case <-time.After(5 * time.Second):
		return Result{Platform: b.name, State: StateFailed, Err: errors.New("runners did not start together")}
	}
}

func TestOrchestratorParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	runners := []Runner{&fakeRunner{name: "hackerone", delay: time.Minute, started: started}}

	go func() {
		<-started
		cancel()
	}()

	report := NewOrchestrator(nil, nil).Run(ctx, runners)
	require.Len(t, report.Failed(), 1)
	assert.True(t, errors.Is(report.Results[0].Err, context.Canceled))
}

func TestOrchestratorEmpty(t *testing.T) {
	report := NewOrchestrator(nil, nil).Run(context.Background(), nil)
	assert.Empty(t, report.Results)
	assert.NoError(t, report.Err())
	assert.Zero(t, report.Programs())
}

func TestOrchestratorWaitsForEveryRunner(t *testing.T) {
	fast := &fakeRunner{name: "intigriti", result: Result{State: StateFailed, Err: errors.New("boom")}}
	slow := &fakeRunner{name: "bugcrowd", delay: 50 * time.Millisecond, result: doneResult(2)}

	report := NewOrchestrator(nil, nil).Run(context.Background(), []Runner{fast, slow})

	require.Len(t, report.Results, 2)
	assert.Equal(t, StateFailed, report.Results[0].State)
	assert.Equal(t, StateDone, report.Results[1].State)
	assert.Equal(t, 2, report.Programs())
	assert.GreaterOrEqual(t, report.Duration, 50*time.Millisecond)
}
