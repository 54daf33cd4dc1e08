package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"voice-diary-go/internal/extractor"
	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/store"
	"voice-diary-go/internal/transcription"
	"voice-diary-go/internal/types"
)

func TestManualSaveScenario(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Recommender = recommenderFunc(func(ctx context.Context, text string) types.Recommendation {
		return types.Recommendation{Emotion: "😊", Songs: []string{"a", "b", "c"}}
	})
	cfg.Keywords = keywordsFunc(func(ctx context.Context, text string) types.Keywords {
		return types.Keywords{Who: []string{"친구"}, Where: []string{"카페"}, What: []string{"공부"}}
	})
	o := newOrchestrator(t, cfg)
	s := o.NewSession("u1", "2025-06-01", nil)

	const text = "오늘은 친구와 카페에서 공부했다"
	got, err := s.ManualSave(context.Background(), text)
	if err != nil {
		t.Fatalf("ManualSave: %v", err)
	}
	if got.Text != text {
		t.Errorf("Text = %q, manual text must be stored unchanged", got.Text)
	}
	if got.Emotion != "😊" || len(got.Songs) != 3 {
		t.Errorf("recommendation = %q %v", got.Emotion, got.Songs)
	}
	want := types.Keywords{Who: []string{"친구"}, Where: []string{"카페"}, What: []string{"공부"}}
	if !reflect.DeepEqual(got.Keywords, want) {
		t.Errorf("Keywords = %+v", got.Keywords)
	}
	if st := s.Status(); st.State != Idle || st.Failed() {
		t.Errorf("status = %+v, want clean Idle", st)
	}

	fetched, err := cfg.Store.Fetch(context.Background(), "u1", "2025-06-01")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !reflect.DeepEqual(fetched, got) {
		t.Errorf("Fetch = %+v\nwant    %+v", fetched, got)
	}
}

func TestRecordingRunWithMocks(t *testing.T) {
	cfg := mockConfig(t)
	o := newOrchestrator(t, cfg)
	rec := recorder.NewFileRecorder(t.TempDir(), true)
	s := o.NewSession("u1", "2025-06-01", rec)

	got, err := record(t, s)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got.Text == "" || got.Text == extractor.SummaryFailedText {
		t.Errorf("Text = %q, want summarized narrative", got.Text)
	}
	if got.Emotion != "😊" || len(got.Songs) != extractor.MaxSongs {
		t.Errorf("recommendation = %q %v", got.Emotion, got.Songs)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
	if rec.Active() {
		t.Error("microphone still held after Stop")
	}
	if !reflect.DeepEqual(s.Draft(), got) {
		t.Error("draft should equal saved record")
	}
}

func TestEmptyTranscript(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Transcriber = transcriberFunc(func(ctx context.Context, asset recorder.Asset) (string, error) {
		return "", nil
	})
	summarizer := &countingSummarizer{inner: extractor.NewSummarizer(extractor.MockCompleter{}, logger.Discard())}
	cfg.Summarizer = summarizer
	o := newOrchestrator(t, cfg)
	s := o.NewSession("u1", "2025-06-01", recorder.NewFileRecorder(t.TempDir(), true))

	got, err := record(t, s)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got.Text != extractor.NoContentText {
		t.Errorf("Text = %q, want %q", got.Text, extractor.NoContentText)
	}
	if summarizer.calls.Load() != 1 {
		t.Errorf("summarizer calls = %d", summarizer.calls.Load())
	}
}

func TestTranscriptionFailureUsesPlaceholder(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Transcriber = transcriberFunc(func(ctx context.Context, asset recorder.Asset) (string, error) {
		return "", transcription.ErrTranscriptionFailed
	})
	summarizer := &countingSummarizer{inner: extractor.NewSummarizer(extractor.MockCompleter{}, logger.Discard())}
	cfg.Summarizer = summarizer
	o := newOrchestrator(t, cfg)
	s := o.NewSession("u1", "2025-06-01", recorder.NewFileRecorder(t.TempDir(), true))

	got, err := record(t, s)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got.Text != transcription.FailedText {
		t.Errorf("Text = %q, want placeholder", got.Text)
	}
	if summarizer.calls.Load() != 0 {
		t.Error("summarizer must be skipped after transcription failure")
	}
	if s.Status().Failed() {
		t.Errorf("transcription failure is soft, status = %+v", s.Status())
	}
}

func TestRecommenderFailureDegrades(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Recommender = extractor.NewRecommender(extractor.MockCompleter{Err: errors.New("503 service unavailable")}, logger.Discard())
	o := newOrchestrator(t, cfg)
	s := o.NewSession("u1", "2025-06-01", nil)

	got, err := s.ManualSave(context.Background(), "오늘은 비가 왔다")
	if err != nil {
		t.Fatalf("ManualSave: %v", err)
	}
	if got.Emotion != extractor.NeutralEmotion {
		t.Errorf("Emotion = %q, want %q", got.Emotion, extractor.NeutralEmotion)
	}
	if got.Songs == nil || len(got.Songs) != 0 {
		t.Errorf("Songs = %#v, want []", got.Songs)
	}
	if got.Keywords.IsEmpty() {
		t.Error("keyword extraction should still succeed")
	}
}

func TestEnrichmentNormalizesAdapterOutput(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Recommender = recommenderFunc(func(ctx context.Context, text string) types.Recommendation {
		return types.Recommendation{Songs: []string{"1", "2", "3", "4"}}
	})
	cfg.Keywords = keywordsFunc(func(ctx context.Context, text string) types.Keywords {
		return types.Keywords{Who: []string{"A", "a", "b", "c", "d", "e", "f"}}
	})
	o := newOrchestrator(t, cfg)

	got, err := o.NewSession("u1", "2025-06-01", nil).ManualSave(context.Background(), "x")
	if err != nil {
		t.Fatalf("ManualSave: %v", err)
	}
	if got.Emotion != extractor.NeutralEmotion || len(got.Songs) != 3 {
		t.Errorf("recommendation = %q %v", got.Emotion, got.Songs)
	}
	if !reflect.DeepEqual(got.Keywords.Who, []string{"A", "b", "c", "d", "e"}) {
		t.Errorf("Who = %v", got.Keywords.Who)
	}
	if got.Keywords.Where == nil || got.Keywords.What == nil {
		t.Error("empty categories must be non-nil")
	}
}

func TestEnrichmentPanicKeepsSibling(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Recommender = recommenderFunc(func(ctx context.Context, text string) types.Recommendation {
		panic("recommender exploded")
	})
	kwCtxErr := make(chan error, 1)
	cfg.Keywords = keywordsFunc(func(ctx context.Context, text string) types.Keywords {
		time.Sleep(20 * time.Millisecond)
		kwCtxErr <- ctx.Err()
		return types.Keywords{Where: []string{"카페"}}
	})
	o := newOrchestrator(t, cfg)

	got, err := o.NewSession("u1", "2025-06-01", nil).ManualSave(context.Background(), "카페에 갔다")
	if err != nil {
		t.Fatalf("ManualSave: %v", err)
	}
	if got.Emotion != extractor.NeutralEmotion || len(got.Songs) != 0 {
		t.Errorf("recommendation = %q %v, want neutral", got.Emotion, got.Songs)
	}
	if !reflect.DeepEqual(got.Keywords.Where, []string{"카페"}) {
		t.Errorf("Where = %v", got.Keywords.Where)
	}
	if err := <-kwCtxErr; err != nil {
		t.Errorf("keyword extractor context was cancelled by the panicking recommender: %v", err)
	}
}

func TestSaveFailureRetainsDraft(t *testing.T) {
	cfg := mockConfig(t)
	fs := &failingStore{Store: cfg.Store, fail: true}
	cfg.Store = fs
	o := newOrchestrator(t, cfg)
	s := o.NewSession("u1", "2025-06-01", nil)

	_, err := s.ManualSave(context.Background(), "저장 실패 테스트")
	if !errors.Is(err, store.ErrPersistenceFailed) {
		t.Fatalf("err = %v, want ErrPersistenceFailed", err)
	}
	st := s.Status()
	if !st.Failed() || !errors.Is(st.Err, store.ErrPersistenceFailed) || st.Notice != NoticeSaveFailed {
		t.Errorf("status = %+v", st)
	}
	if s.Draft().Text != "저장 실패 테스트" || s.Draft().Emotion == "" {
		t.Errorf("draft not retained: %+v", s.Draft())
	}
	if _, err := fs.Fetch(context.Background(), "u1", "2025-06-01"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("nothing should be stored, err = %v", err)
	}

	fs.setFail(false)
	got, err := s.ManualSave(context.Background(), s.Draft().Text)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Text != "저장 실패 테스트" || s.Status().Failed() {
		t.Errorf("retry result %+v status %+v", got, s.Status())
	}
}

func TestPermissionDenied(t *testing.T) {
	o := newOrchestrator(t, mockConfig(t))
	rec := recorder.NewFileRecorder(t.TempDir(), false)
	s := o.NewSession("u1", "2025-06-01", rec)

	err := s.Start(context.Background())
	if !errors.Is(err, recorder.ErrPermissionDenied) {
		t.Fatalf("Start err = %v", err)
	}
	st := s.Status()
	if !st.Failed() || st.Notice != NoticePermissionDenied {
		t.Errorf("status = %+v", st)
	}
	if rec.Active() {
		t.Error("no handle may be retained after denial")
	}
	if _, err := s.AppendAudio(strings.NewReader("x")); !errors.Is(err, recorder.ErrNotRecording) {
		t.Errorf("AppendAudio err = %v", err)
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	o := newOrchestrator(t, mockConfig(t))
	s := o.NewSession("u1", "2025-06-01", recorder.NewFileRecorder(t.TempDir(), true))

	got, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got.Text != "" || s.Status().State != Idle {
		t.Errorf("Stop on idle changed something: %+v %+v", got, s.Status())
	}
}

func TestCancelDropsRecording(t *testing.T) {
	cfg := mockConfig(t)
	o := newOrchestrator(t, cfg)
	rec := recorder.NewFileRecorder(t.TempDir(), true)
	s := o.NewSession("u1", "2025-06-01", rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cause := errors.New("upload interrupted")
	s.Cancel(cause)

	if st := s.Status(); st.State != Idle || !errors.Is(st.Err, cause) {
		t.Errorf("status = %+v, want Idle(cause)", st)
	}
	if rec.Active() {
		t.Error("microphone handle still held after Cancel")
	}
	if _, err := s.AppendAudio(strings.NewReader("late")); !errors.Is(err, recorder.ErrNotRecording) {
		t.Errorf("AppendAudio after Cancel err = %v", err)
	}
	if _, err := cfg.Store.Fetch(context.Background(), "u1", "2025-06-01"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Fetch err = %v, want ErrNotFound", err)
	}
}

func TestStartWhileBusyIsRejected(t *testing.T) {
	o := newOrchestrator(t, mockConfig(t))
	rec := recorder.NewFileRecorder(t.TempDir(), true)
	s := o.NewSession("u1", "2025-06-01", rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start err = %v", err)
	}
	if _, err := s.ManualSave(context.Background(), "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ManualSave during recording err = %v", err)
	}
	s.Stop(context.Background())
}

func TestStagePanicReleasesMicrophone(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Summarizer = summarizerFunc(func(ctx context.Context, raw string) string {
		panic("summarizer exploded")
	})
	o := newOrchestrator(t, cfg)
	rec := recorder.NewFileRecorder(t.TempDir(), true)
	s := o.NewSession("u1", "2025-06-01", rec)

	_, err := record(t, s)
	if !errors.Is(err, ErrStagePanic) {
		t.Fatalf("err = %v, want ErrStagePanic", err)
	}
	if !s.Status().Failed() {
		t.Errorf("status = %+v, want Idle(error)", s.Status())
	}
	if rec.Active() {
		t.Error("microphone still held after panic")
	}
	if _, err := cfg.Store.Fetch(context.Background(), "u1", "2025-06-01"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("nothing should be saved, err = %v", err)
	}
}

func TestCancellationBetweenStagesSkipsSave(t *testing.T) {
	cfg := mockConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cfg.Summarizer = summarizerFunc(func(_ context.Context, raw string) string {
		cancel()
		return raw
	})
	o := newOrchestrator(t, cfg)
	s := o.NewSession("u1", "2025-06-01", recorder.NewFileRecorder(t.TempDir(), true))

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := s.Stop(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st := s.Status(); !st.Failed() {
		t.Errorf("status = %+v", st)
	}
	if _, err := cfg.Store.Fetch(context.Background(), "u1", "2025-06-01"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("canceled run must not save, err = %v", err)
	}
}

func TestEnrichmentRunsConcurrently(t *testing.T) {
	cfg := mockConfig(t)
	recStarted := make(chan struct{})
	kwStarted := make(chan struct{})
	wait := func(ch chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-time.After(2 * time.Second):
			return false
		}
	}

	cfg.Recommender = recommenderFunc(func(ctx context.Context, text string) types.Recommendation {
		close(recStarted)
		if !wait(kwStarted) {
			return types.Recommendation{Emotion: "sequential"}
		}
		return types.Recommendation{Emotion: "😊", Songs: []string{}}
	})
	cfg.Keywords = keywordsFunc(func(ctx context.Context, text string) types.Keywords {
		close(kwStarted)
		if !wait(recStarted) {
			return types.Keywords{Who: []string{"sequential"}}
		}
		return types.Keywords{What: []string{"동시"}}
	})
	o := newOrchestrator(t, cfg)

	got, err := o.NewSession("u1", "2025-06-01", nil).ManualSave(context.Background(), "x")
	if err != nil {
		t.Fatalf("ManualSave: %v", err)
	}
	if got.Emotion != "😊" || !reflect.DeepEqual(got.Keywords.What, []string{"동시"}) {
		t.Errorf("adapters did not overlap: %+v", got)
	}
}

func TestAdapterCallsAreBounded(t *testing.T) {
	cfg := mockConfig(t)
	cfg.AdapterTimeout = 50 * time.Millisecond
	cfg.Recommender = recommenderFunc(func(ctx context.Context, text string) types.Recommendation {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("recommender context has no deadline")
		}
		<-ctx.Done()
		return extractor.NeutralRecommendation()
	})
	o := newOrchestrator(t, cfg)

	start := time.Now()
	got, err := o.NewSession("u1", "2025-06-01", nil).ManualSave(context.Background(), "x")
	if err != nil {
		t.Fatalf("ManualSave: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("adapter timeout not applied")
	}
	if got.Emotion != extractor.NeutralEmotion {
		t.Errorf("Emotion = %q", got.Emotion)
	}
}

func TestLoad(t *testing.T) {
	cfg := mockConfig(t)
	o := newOrchestrator(t, cfg)

	s := o.NewSession("u1", "2025-06-01", nil)
	rec, found, err := s.Load(context.Background())
	if err != nil || found {
		t.Fatalf("Load on empty store = %v, %v", found, err)
	}
	if rec.Text != "" || rec.Songs == nil {
		t.Errorf("empty draft = %+v", rec)
	}

	saved, err := s.ManualSave(context.Background(), "기록")
	if err != nil {
		t.Fatalf("ManualSave: %v", err)
	}
	rec, found, err = o.NewSession("u1", "2025-06-01", nil).Load(context.Background())
	if err != nil || !found || !reflect.DeepEqual(rec, saved) {
		t.Errorf("Load = %+v, %v, %v", rec, found, err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without adapters")
	}
	cfg := mockConfig(t)
	cfg.Store = nil
	if _, err := New(cfg); err == nil {
		t.Error("expected error without store")
	}
}
