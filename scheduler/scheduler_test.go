package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ads-scraper/db"
	"ads-scraper/models"
	"ads-scraper/output"
	"ads-scraper/scraper"
)

type fakeStore struct {
	mu        sync.Mutex
	queue     []*db.Request
	claimErr  error
	saveErr   error
	saved     map[int][]models.Ad
	completed map[int]string
	failed    map[int]string
	sheets    map[int]string
}

func newFakeStore(reqs ...*db.Request) *fakeStore {
	return &fakeStore{
		queue:     reqs,
		saved:     map[int][]models.Ad{},
		completed: map[int]string{},
		failed:    map[int]string{},
		sheets:    map[int]string{},
	}
}

func (f *fakeStore) ClaimNextRequest(context.Context) (*db.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.queue) == 0 {
		return nil, nil
	}
	req := f.queue[0]
	f.queue = f.queue[1:]
	return req, nil
}

func (f *fakeStore) SaveAds(_ context.Context, id int, ads []models.Ad) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[id] = ads
	return nil
}

func (f *fakeStore) CompleteRequest(_ context.Context, id int, runID string, _, _ int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = runID
	return nil
}

func (f *fakeStore) FailRequest(_ context.Context, id int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeStore) UpdateRequestSheetName(_ context.Context, id int, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sheets[id] = name
	return nil
}

type sentMessage struct {
	chatID  int64
	replyTo int
	text    string
	path    string
}

type fakeNotifier struct {
	mu     sync.Mutex
	texts  []sentMessage
	docs   []sentMessage
	docErr error
}

func (n *fakeNotifier) SendText(chatID int64, replyTo int, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, sentMessage{chatID: chatID, replyTo: replyTo, text: text})
	return nil
}

func (n *fakeNotifier) SendDocument(chatID int64, replyTo int, path, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.docErr != nil {
		return n.docErr
	}
	n.docs = append(n.docs, sentMessage{chatID: chatID, replyTo: replyTo, text: caption, path: path})
	return nil
}

type fakeRunner struct {
	ads  []models.Ad
	err  error
	jobs []scraper.Job
}

func (r *fakeRunner) Run(_ context.Context, job scraper.Job) (*scraper.Result, error) {
	r.jobs = append(r.jobs, job)
	if r.err != nil {
		return nil, r.err
	}
	written, err := output.WriteAds(job.Output, r.ads, job.Options)
	if err != nil {
		return nil, err
	}
	return &scraper.Result{RunID: "run-1", Ads: r.ads, Pages: job.Pages, Output: job.Output, Written: written}, nil
}

type fakeExporter struct {
	err   error
	names []string
}

func (e *fakeExporter) CreateSheetAndWriteAds(_ context.Context, name string, _ []models.Ad, _ string) (string, int64, error) {
	if e.err != nil {
		return "", 0, e.err
	}
	e.names = append(e.names, name)
	return name, 42, nil
}

var testAds = []models.Ad{
	{Title: "A", Link: "/a", ShortDescription: "d1", Country: "UA", City: "Kyiv", Price: "1"},
	{Title: "B", Link: "/b", ShortDescription: "d2", Country: "UA", City: "Lviv", Price: "2"},
}

func testRequest() *db.Request {
	return &db.Request{ID: 7, UserID: 100, TelegramMessageID: 55, URL: "https://avitoua.com/search/iPage,", Pages: 3}
}

func newTestScheduler(t *testing.T, store Store, runner Runner, notifier Notifier, exporter Exporter) *Scheduler {
	t.Helper()
	return NewScheduler(store, runner, notifier, exporter, Options{
		OutputDir:      filepath.Join(t.TempDir(), "data"),
		SpreadsheetURL: "https://docs.google.com/spreadsheets/d/sheet123/edit",
	}, zaptest.NewLogger(t).Sugar())
}

func TestProcessNextRequestSuccess(t *testing.T) {
	store := newFakeStore(testRequest())
	runner := &fakeRunner{ads: testAds}
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, store, runner, notifier, nil)

	require.True(t, s.processNextRequest(context.Background()))

	require.Len(t, runner.jobs, 1)
	job := runner.jobs[0]
	assert.Equal(t, "https://avitoua.com/search/iPage,", job.URLTemplate)
	assert.Equal(t, 3, job.Pages)
	assert.Equal(t, OutputPath(s.opts.OutputDir, 7), job.Output)
	assert.Equal(t, ';', job.Options.Delimiter)

	_, err := os.Stat(job.Output)
	require.NoError(t, err)

	assert.Equal(t, testAds, store.saved[7])
	assert.Equal(t, "run-1", store.completed[7])
	assert.Empty(t, store.failed)

	require.Len(t, notifier.docs, 1)
	assert.Equal(t, int64(100), notifier.docs[0].chatID)
	assert.Equal(t, 55, notifier.docs[0].replyTo)
	assert.Equal(t, job.Output, notifier.docs[0].path)
	assert.Contains(t, notifier.docs[0].text, "Got 2 ad(s) from 3 page(s)")
	assert.NotContains(t, notifier.docs[0].text, "spreadsheet")
}

func TestProcessNextRequestEmptyQueue(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{}
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, store, runner, notifier, nil)

	assert.False(t, s.processNextRequest(context.Background()))
	assert.Empty(t, runner.jobs)
	assert.Empty(t, notifier.texts)
}

func TestProcessNextRequestClaimError(t *testing.T) {
	store := newFakeStore(testRequest())
	store.claimErr = errors.New("db down")
	s := newTestScheduler(t, store, &fakeRunner{}, &fakeNotifier{}, nil)

	assert.False(t, s.processNextRequest(context.Background()))
}

func TestProcessNextRequestRunError(t *testing.T) {
	store := newFakeStore(testRequest())
	runner := &fakeRunner{err: errors.New("page 2: missing expected node")}
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, store, runner, notifier, nil)

	require.True(t, s.processNextRequest(context.Background()))

	assert.Equal(t, "page 2: missing expected node", store.failed[7])
	assert.Empty(t, store.completed)
	assert.Empty(t, store.saved)
	assert.Empty(t, notifier.docs)
	require.NotEmpty(t, notifier.texts)
	assert.Contains(t, notifier.texts[len(notifier.texts)-1].text, "missing expected node")
}

func TestProcessNextRequestSaveError(t *testing.T) {
	store := newFakeStore(testRequest())
	store.saveErr = errors.New("tx failed")
	s := newTestScheduler(t, store, &fakeRunner{ads: testAds}, &fakeNotifier{}, nil)

	require.True(t, s.processNextRequest(context.Background()))
	assert.Equal(t, "tx failed", store.failed[7])
	assert.Empty(t, store.completed)
}

func TestProcessNextRequestExportsToSheets(t *testing.T) {
	store := newFakeStore(testRequest())
	notifier := &fakeNotifier{}
	exporter := &fakeExporter{}
	s := newTestScheduler(t, store, &fakeRunner{ads: testAds}, notifier, exporter)

	require.True(t, s.processNextRequest(context.Background()))

	require.Len(t, exporter.names, 1)
	assert.Contains(t, exporter.names[0], "Request_7_")
	assert.Equal(t, exporter.names[0], store.sheets[7])
	require.Len(t, notifier.docs, 1)
	assert.Contains(t, notifier.docs[0].text, "https://docs.google.com/spreadsheets/d/sheet123/edit#gid=42")
}

func TestProcessNextRequestExportError(t *testing.T) {
	store := newFakeStore(testRequest())
	exporter := &fakeExporter{err: errors.New("quota exceeded")}
	s := newTestScheduler(t, store, &fakeRunner{ads: testAds}, &fakeNotifier{}, exporter)

	require.True(t, s.processNextRequest(context.Background()))
	assert.Equal(t, "quota exceeded", store.failed[7])
	assert.Empty(t, store.completed)
}

func TestProcessNextRequestDocumentFallback(t *testing.T) {
	store := newFakeStore(testRequest())
	notifier := &fakeNotifier{docErr: errors.New("file too big")}
	s := newTestScheduler(t, store, &fakeRunner{ads: testAds}, notifier, nil)

	require.True(t, s.processNextRequest(context.Background()))
	assert.Equal(t, "run-1", store.completed[7])
	require.NotEmpty(t, notifier.texts)
	assert.Contains(t, notifier.texts[len(notifier.texts)-1].text, "Got 2 ad(s)")
}

func TestStartDrainsQueueAndStops(t *testing.T) {
	first := testRequest()
	second := testRequest()
	second.ID = 8
	store := newFakeStore(first, second)

	s := NewScheduler(store, &fakeRunner{ads: testAds}, &fakeNotifier{}, nil, Options{
		Interval:  10 * time.Millisecond,
		OutputDir: t.TempDir(),
	}, zaptest.NewLogger(t).Sugar())
	s.Start()

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.completed) == 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "ads_12.csv"), OutputPath("data", 12))
}
