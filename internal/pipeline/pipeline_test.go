package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hwvalue/internal/catalog"
	"github.com/sells-group/hwvalue/internal/config"
	"github.com/sells-group/hwvalue/internal/filter"
	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/resilience"
	"github.com/sells-group/hwvalue/internal/resolver"
	"github.com/sells-group/hwvalue/internal/value"
)

var urlSeq int

func raw(title string, price float64) model.RawListing {
	urlSeq++
	return model.RawListing{Title: title, Price: price, URL: fmt.Sprintf("https://www.olx.bg/d/ad/item-ID%d.html", urlSeq)}
}

func page(hasNext bool, listings ...model.RawListing) *model.Page {
	return &model.Page{Status: 200, Listings: listings, HasNext: hasNext}
}

func newTestPipeline(t *testing.T, opts Options, src *mockSource, st *mockStore) *Pipeline {
	t.Helper()
	cat, err := catalog.Parse([]byte(`
models:
  - {id: X, benchmark: 100, patterns: [card x]}
  - {id: Y, benchmark: 50, patterns: [card y]}
`))
	require.NoError(t, err)
	res, err := resolver.New(cat)
	require.NoError(t, err)
	return New(opts, src, st, res, filter.New(filter.DefaultConfig(), cat), value.NewEngine(cat))
}

func forTerm(term string) any {
	return mock.MatchedBy(func(ls []model.AcceptedListing) bool {
		return len(ls) > 0 && ls[0].Term == term
	})
}

func TestRun_EndToEndScenario(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	listings := []model.RawListing{
		raw("Card X used for mining", 95),
		raw("Card X broken fan", 99),
	}
	for _, p := range []float64{40, 90, 95, 100, 98, 102, 97, 500} {
		listings = append(listings, raw("Card X good condition", p))
	}
	src.On("Fetch", mock.Anything, "card", 1).Return(page(false, listings...), nil)

	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.MatchedBy(func(ls []model.AcceptedListing) bool {
		return len(ls) == 6
	})).Return(6, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.MatchedBy(func(r []model.RejectedListing) bool {
		return len(r) == 4
	})).Return(nil)

	p := newTestPipeline(t, Options{Terms: []string{"card"}, MaxPages: 3, Workers: 2}, src, st)
	sum, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, sum.Status)
	assert.False(t, sum.Interrupted)
	assert.NotEmpty(t, sum.ID)
	assert.Empty(t, sum.Error)

	assert.Equal(t, 10, sum.Totals.Fetched)
	assert.Equal(t, 10, sum.Totals.Resolved)
	assert.Equal(t, 6, sum.Totals.Accepted)
	assert.Equal(t, 4, sum.Totals.Rejected)
	assert.Equal(t, 6, sum.Totals.Written)

	assert.Equal(t, 2, sum.Rejections[model.RejectBlacklist])
	assert.Equal(t, 1, sum.Rejections[model.RejectFloor])
	assert.Equal(t, 1, sum.Rejections[model.RejectOutlierHigh])

	require.Len(t, sum.Models, 1)
	assert.Equal(t, 97.5, sum.Models[0].Median)
	require.Len(t, sum.Ranking, 1)
	assert.Equal(t, "X", sum.Ranking[0].Model)
	assert.Equal(t, 100.0, sum.Ranking[0].RelativeScore)

	require.Len(t, sum.Terms, 1)
	assert.Equal(t, model.TermStatusCompleted, sum.Terms[0].Status)
	assert.Equal(t, 1, sum.Terms[0].Pages)

	src.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestRun_AcceptedListingsCarryRunAndTerm(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	l := raw("Card Y excellent condition", 300)
	src.On("Fetch", mock.Anything, "y", 1).Return(page(false, l), nil)

	var runID string
	st.On("SaveRun", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		runID = args.Get(1).(*model.RunSummary).ID
	}).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.MatchedBy(func(ls []model.AcceptedListing) bool {
		return len(ls) == 1 && ls[0].Model == "Y" && ls[0].URL == l.URL && ls[0].Term == "y" &&
			ls[0].RunID == runID && !ls[0].SeenAt.IsZero()
	})).Return(1, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sum, err := newTestPipeline(t, Options{Terms: []string{"y"}, MaxPages: 1}, src, st).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runID, sum.ID)
	st.AssertExpectations(t)
}

func TestRun_StopsAtPageCap(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "x", 1).Return(page(true, raw("Card X good condition", 100)), nil)
	src.On("Fetch", mock.Anything, "x", 2).Return(page(true, raw("Card X good condition", 110)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(2, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sum, err := newTestPipeline(t, Options{Terms: []string{"x"}, MaxPages: 2}, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Terms[0].Pages)
	src.AssertNotCalled(t, "Fetch", mock.Anything, "x", 3)
}

func TestRun_StopsOnEmptyPage(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "x", 1).Return(page(true, raw("Card X good condition", 100)), nil)
	src.On("Fetch", mock.Anything, "x", 2).Return(page(true), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sum, err := newTestPipeline(t, Options{Terms: []string{"x"}, MaxPages: 5}, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Terms[0].Pages)
	src.AssertNotCalled(t, "Fetch", mock.Anything, "x", 3)
}

func TestRun_StopsWhenNoNextPage(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "x", 1).Return(page(false, raw("Card X good condition", 100)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := newTestPipeline(t, Options{Terms: []string{"x"}, MaxPages: 5}, src, st).Run(context.Background())
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRun_SkippedPageIsNotFatal(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	notFound := resilience.NewFetchError(resilience.KindPermanent, 404, "u", errors.New("not found"))
	src.On("Fetch", mock.Anything, "x", 1).Return(nil, notFound)
	src.On("Fetch", mock.Anything, "x", 2).Return(page(false, raw("Card X good condition", 100)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sum, err := newTestPipeline(t, Options{Terms: []string{"x"}, MaxPages: 3}, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, sum.Status)
	ts := sum.Terms[0]
	assert.Equal(t, model.TermStatusCompleted, ts.Status)
	assert.Equal(t, 1, ts.PagesSkipped)
	assert.Equal(t, 1, ts.Pages)
	assert.Equal(t, 1, ts.Written)
}

func TestRun_StopsAfterMaxEmptyPages(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	unavailable := resilience.NewFetchError(resilience.KindTransient, 503, "u", errors.New("unavailable"))
	src.On("Fetch", mock.Anything, "x", mock.Anything).Return(nil, unavailable)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"x"}, MaxPages: 10, MaxEmptyPages: 2}
	sum, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Terms[0].PagesSkipped)
	src.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestRun_DuplicateURLsAcrossTerms(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	shared := raw("Card X good condition", 100)
	src.On("Fetch", mock.Anything, "a", 1).Return(page(false, shared), nil)
	src.On("Fetch", mock.Anything, "b", 1).Return(page(false, shared, raw("Card X like new", 105)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("a")).Return(1, nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.MatchedBy(func(ls []model.AcceptedListing) bool {
		return len(ls) == 1 && ls[0].Term == "b" && ls[0].URL != shared.URL
	})).Return(1, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"a", "b"}, MaxPages: 1, Workers: 1}
	sum, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, sum.Terms[0].Duplicates)
	assert.Equal(t, 1, sum.Terms[1].Duplicates)
	assert.Equal(t, 2, sum.Totals.Accepted)
	st.AssertExpectations(t)
}

func TestRun_RejectionLogKeepsReasons(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "x", 1).Return(page(false,
		raw("Some unknown gadget for sale", 100),
		raw("Gaming PC with Card X", 1500),
		raw("Card X", 100),
	), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)

	var logged []model.RejectedListing
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(2).([]model.RejectedListing)
	}).Return(nil)

	sum, err := newTestPipeline(t, Options{Terms: []string{"x"}, MaxPages: 1}, src, st).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, logged, 3)
	cats := map[model.RejectCategory]int{}
	for _, r := range logged {
		cats[r.Category]++
		assert.Equal(t, sum.ID, r.RunID)
		assert.Equal(t, "x", r.Term)
		assert.NotEmpty(t, r.Reason)
	}
	assert.Equal(t, 1, cats[model.RejectUnresolved])
	assert.Equal(t, 1, cats[model.RejectComputer])
	assert.Equal(t, 1, cats[model.RejectTitleShort])
	assert.Equal(t, 0, sum.Totals.Resolved)
}

func TestRun_PersistenceFailureIsolatesTerms(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "t1", 1).Return(page(false, raw("Card X good condition", 100)), nil)
	src.On("Fetch", mock.Anything, "t2", 1).Return(page(false, raw("Card X good condition", 101)), nil)
	src.On("Fetch", mock.Anything, "t3", 1).Return(page(false, raw("Card X good condition", 102)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("t1")).Return(1, nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("t2")).Return(0, errors.New("deadlock detected"))
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"t1", "t2", "t3"}, MaxPages: 1, Workers: 1}
	sum, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, sum.Status)
	assert.Equal(t, "persistence failed", sum.Error)

	assert.Equal(t, model.TermStatusCompleted, sum.Terms[0].Status)
	assert.Equal(t, 1, sum.Terms[0].Written)
	assert.Equal(t, model.TermStatusFailed, sum.Terms[1].Status)
	assert.Equal(t, "persistence failed", sum.Terms[1].Error)
	assert.NotContains(t, sum.Terms[1].Error, "deadlock")
	assert.Equal(t, model.TermStatusSkipped, sum.Terms[2].Status)

	src.AssertNotCalled(t, "Fetch", mock.Anything, "t3", mock.Anything)
	st.AssertNotCalled(t, "UpsertListings", mock.Anything, mock.Anything, forTerm("t3"))
	assert.Equal(t, 1, sum.FailedTerms())
	assert.Equal(t, 1, sum.Totals.Written)
}

func TestRun_FailedTermLeavesNoStats(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "t1", 1).Return(page(false, raw("Card X good condition", 100)), nil)
	src.On("Fetch", mock.Anything, "t2", 1).Return(page(false, raw("Card Y good condition", 60)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("t1")).Return(1, nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("t2")).Return(0, errors.New("serialization failure"))
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"t1", "t2"}, MaxPages: 1, Workers: 1}
	sum, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, sum.Status)
	assert.Equal(t, 1, sum.Terms[1].Accepted)
	require.Len(t, sum.Models, 1)
	assert.Equal(t, "X", sum.Models[0].Model)
	require.Len(t, sum.Ranking, 1)
	assert.Equal(t, "X", sum.Ranking[0].Model)
}

func TestRun_TermsCommitInOrder(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "t1", 1).Return(page(false, raw("Card X good condition", 100)), nil)
	src.On("Fetch", mock.Anything, "t2", 1).Return(page(false, raw("Card X good condition", 101)), nil)
	src.On("Fetch", mock.Anything, "t3", 1).Return(page(false, raw("Card Y good condition", 60)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("t1")).Return(1, nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("t2")).
		After(200*time.Millisecond).Return(0, errors.New("deadlock detected"))
	st.On("UpsertListings", mock.Anything, mock.Anything, forTerm("t3")).Return(1, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"t1", "t2", "t3"}, MaxPages: 1, Workers: 2}
	sum, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, sum.Status)
	assert.Equal(t, model.TermStatusCompleted, sum.Terms[0].Status)
	assert.Equal(t, model.TermStatusFailed, sum.Terms[1].Status)
	assert.Equal(t, model.TermStatusSkipped, sum.Terms[2].Status)
	assert.Zero(t, sum.Terms[2].Written)

	src.AssertCalled(t, "Fetch", mock.Anything, "t3", 1)
	st.AssertNotCalled(t, "UpsertListings", mock.Anything, mock.Anything, forTerm("t3"))
	assert.Equal(t, 1, sum.Totals.Written)
	for _, m := range sum.Models {
		assert.NotEqual(t, "Y", m.Model)
	}
}

func TestRun_FatalErrorFailsRun(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	lost := resilience.NewFetchError(resilience.KindFatal, 0, "u", resilience.ErrCircuitOpen)
	src.On("Fetch", mock.Anything, "t1", 1).Return(page(true, raw("Card X good condition", 100)), nil)
	src.On("Fetch", mock.Anything, "t1", 2).Return(nil, lost)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"t1", "t2"}, MaxPages: 3, Workers: 1}
	sum, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, sum.Status)
	assert.Equal(t, "connectivity lost", sum.Error)
	assert.Equal(t, model.TermStatusFailed, sum.Terms[0].Status)
	assert.Equal(t, model.TermStatusSkipped, sum.Terms[1].Status)

	st.AssertNotCalled(t, "UpsertListings", mock.Anything, mock.Anything, mock.Anything)
	src.AssertNotCalled(t, "Fetch", mock.Anything, "t2", mock.Anything)
	st.AssertCalled(t, "SaveRun", mock.Anything, mock.Anything)
}

func TestRun_GracefulDrain(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src.On("Fetch", mock.Anything, "t1", 1).Run(func(mock.Arguments) {
		cancel()
	}).Return(page(true, raw("Card X good condition", 100), raw("Card X like new", 120)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.MatchedBy(func(c context.Context) bool {
		return c.Err() == nil
	}), mock.Anything, forTerm("t1")).Return(2, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"t1", "t2"}, MaxPages: 3, Workers: 1}
	sum, err := newTestPipeline(t, opts, src, st).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, sum.Status)
	assert.True(t, sum.Interrupted)
	assert.Equal(t, model.TermStatusCompleted, sum.Terms[0].Status)
	assert.Equal(t, 2, sum.Terms[0].Written)
	assert.Equal(t, model.TermStatusSkipped, sum.Terms[1].Status)

	src.AssertNotCalled(t, "Fetch", mock.Anything, "t1", 2)
	st.AssertExpectations(t)
}

func TestRun_ConcurrentTerms(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	terms := []string{"a", "b", "c", "d"}
	for i, term := range terms {
		src.On("Fetch", mock.Anything, term, 1).Return(page(false,
			raw(fmt.Sprintf("Card X good condition %c", 'a'+i), 100+float64(i)),
			raw("Card Y good condition", 200),
		), nil)
	}
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(2, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: terms, MaxPages: 1, Workers: 3}
	sum, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, sum.Status)
	assert.Equal(t, 8, sum.Totals.Accepted)
	for _, ts := range sum.Terms {
		assert.Equal(t, model.TermStatusCompleted, ts.Status)
	}
	require.Len(t, sum.Models, 2)
	assert.Equal(t, "X", sum.Models[0].Model)
	assert.Equal(t, 4, sum.Models[0].Count)
	require.Len(t, sum.Ranking, 2)
	assert.Equal(t, "X", sum.Ranking[0].Model)
}

func TestRun_PageDelayBetweenPages(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "x", 1).Return(page(true, raw("Card X good condition", 100)), nil)
	src.On("Fetch", mock.Anything, "x", 2).Return(page(false, raw("Card X good condition", 100)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(2, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	opts := Options{Terms: []string{"x"}, MaxPages: 2, PageDelay: 30 * time.Millisecond}
	start := time.Now()
	_, err := newTestPipeline(t, opts, src, st).Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRun_SaveRunFailure(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}
	st.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	sum, err := newTestPipeline(t, Options{Terms: []string{"x"}}, src, st).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, sum)
	assert.Contains(t, err.Error(), "pipeline: save run")
	src.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_RejectedLogFailureIsReported(t *testing.T) {
	src := &mockSource{}
	st := &mockStore{}

	src.On("Fetch", mock.Anything, "x", 1).Return(page(false, raw("Card X good condition", 100)), nil)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertListings", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	st.On("ReplaceRejectedLog", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	sum, err := newTestPipeline(t, Options{Terms: []string{"x"}}, src, st).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, sum.Status)
	assert.Equal(t, "rejection log not saved", sum.Error)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{Ingest: config.IngestConfig{
		Terms:         []string{"rtx"},
		MaxPages:      4,
		Workers:       3,
		PageDelayMs:   1500,
		MaxEmptyPages: 2,
	}}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, []string{"rtx"}, opts.Terms)
	assert.Equal(t, 4, opts.MaxPages)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, 1500*time.Millisecond, opts.PageDelay)
	assert.Equal(t, 2, opts.MaxEmptyPages)
}
