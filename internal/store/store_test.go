package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sketchpad/internal/config"
	"sketchpad/internal/kv"
	"sketchpad/internal/sample"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu        sync.Mutex
	data      []sample.TrainingSample
	appended  []sample.TrainingSample
	cleared   int
	fetchErr  error
	appendErr error
}

func (f *fakeRemote) FetchAll(context.Context) ([]sample.TrainingSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]sample.TrainingSample(nil), f.data...), nil
}

func (f *fakeRemote) Append(_ context.Context, s sample.TrainingSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, s)
	f.data = append(f.data, s)
	return nil
}

func (f *fakeRemote) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.data = nil
	return nil
}

func testOptions() Options {
	opts := OptionsFrom(config.NewConfig().Store)
	opts.RemoteTimeout = time.Second
	return opts
}

func newTestStore(t *testing.T, local kv.Store, remote Remote, opts Options) *Store {
	t.Helper()
	return New(local, remote, sample.NewValidator(5), opts)
}

func mkSample(id string, loudness float64, shape int) sample.TrainingSample {
	return sample.TrainingSample{
		ID: id,
		XS: sample.FeatureVector{Loudness: loudness, Pitch: 0.5, Brightness: 0.6, Roughness: 0.2},
		YS: sample.LabelVector{Y1: 0.2, Y2: 0.3, Y3: 0.4, Y4: 0.5, Shape: shape},
	}
}

func TestAddRejectsInvalidWithoutMutation(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	remote := &fakeRemote{}
	s := newTestStore(t, local, remote, testOptions())

	bad := []sample.TrainingSample{
		func() sample.TrainingSample { ts := mkSample("", 1, 2); ts.XS.Pitch = math.NaN(); return ts }(),
		mkSample("", 1, 5),
		mkSample("", 1, -1),
		func() sample.TrainingSample { ts := mkSample("", 1, 2); ts.YS.Y4 = 2; return ts }(),
	}
	for _, ts := range bad {
		err := s.Add(ctx, ts)
		require.Error(t, err)
		assert.True(t, sample.IsValidationError(err), "got %v", err)
	}

	s.Wait()
	assert.Equal(t, 0, s.Len())
	_, err := local.Get(ctx, testOptions().Key)
	assert.ErrorIs(t, err, kv.ErrNotFound)
	assert.Empty(t, remote.appended)
}

func TestAddPersistsLocalThenRemote(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	remote := &fakeRemote{}
	s := newTestStore(t, local, remote, testOptions())

	require.NoError(t, s.Add(ctx, mkSample("", 1, 2)))
	require.NoError(t, s.Add(ctx, mkSample("", 2, 3)))
	s.Wait()

	payload, err := local.Get(ctx, testOptions().Key)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(payload, &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, 2, doc.Count)
	assert.Len(t, doc.Data, 2)
	assert.NotZero(t, doc.Timestamp)

	require.Len(t, remote.appended, 2)
	assert.NotEmpty(t, remote.appended[0].ID)
	assert.ElementsMatch(t, s.Samples(), remote.appended)
}

func TestAddRemoteFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{appendErr: errors.New("connection refused")}
	s := newTestStore(t, kv.NewMemory(), remote, testOptions())

	require.NoError(t, s.Add(ctx, mkSample("", 1, 2)))
	s.Wait()
	assert.Equal(t, 1, s.Len())
}

func TestRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	first := newTestStore(t, local, nil, testOptions())
	for i := range 5 {
		require.NoError(t, first.Add(ctx, mkSample("", float64(i), i%5)))
	}

	second := newTestStore(t, local, nil, testOptions())
	assert.Equal(t, SourceLocal, second.LoadAtStartup(ctx))
	assert.Equal(t, first.Samples(), second.Samples())
}

func TestLoadRemoteWins(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	seed := newTestStore(t, local, nil, testOptions())
	require.NoError(t, seed.Add(ctx, mkSample("local-1", 1, 1)))

	remote := &fakeRemote{data: []sample.TrainingSample{
		mkSample("r1", 2, 2),
		mkSample("bad", 2, 7), // out of range, dropped
		mkSample("r2", 3, 3),
	}}
	s := newTestStore(t, local, remote, testOptions())
	assert.Equal(t, SourceRemote, s.LoadAtStartup(ctx))

	want := []sample.TrainingSample{mkSample("r1", 2, 2), mkSample("r2", 3, 3)}
	assert.Equal(t, want, s.Samples())

	// The remote set is mirrored locally.
	mirror := newTestStore(t, local, nil, testOptions())
	mirror.LoadAtStartup(ctx)
	assert.Equal(t, want, mirror.Samples())
}

func TestLoadFallsBackToLocal(t *testing.T) {
	tests := []struct {
		name   string
		remote *fakeRemote
	}{
		{"Remote error", &fakeRemote{fetchErr: errors.New("unreachable")}},
		{"Remote empty", &fakeRemote{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			local := kv.NewMemory()
			seed := newTestStore(t, local, nil, testOptions())
			require.NoError(t, seed.Add(ctx, mkSample("l1", 1, 1)))

			s := newTestStore(t, local, tt.remote, testOptions())
			assert.Equal(t, SourceLocal, s.LoadAtStartup(ctx))
			assert.Equal(t, seed.Samples(), s.Samples())
		})
	}
}

func TestLoadRemoteTimeoutFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	seed := newTestStore(t, local, nil, testOptions())
	require.NoError(t, seed.Add(ctx, mkSample("", 1, 2)))
	require.NoError(t, seed.Add(ctx, mkSample("", 2, 4)))

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := testOptions()
	opts.RemoteTimeout = 50 * time.Millisecond
	s := newTestStore(t, local, NewHTTPRemote(srv.URL, nil), opts)

	start := time.Now()
	source := s.LoadAtStartup(ctx)
	elapsed := time.Since(start)

	assert.Equal(t, SourceLocal, source)
	assert.Equal(t, seed.Samples(), s.Samples())
	assert.Less(t, elapsed, 2*time.Second)
}

func TestLoadUnionMerge(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	seed := newTestStore(t, local, nil, testOptions())
	require.NoError(t, seed.Add(ctx, mkSample("a", 1, 1)))
	require.NoError(t, seed.Add(ctx, mkSample("b", 2, 2)))

	remote := &fakeRemote{data: []sample.TrainingSample{mkSample("a", 1, 1), mkSample("c", 3, 3)}}
	opts := testOptions()
	opts.Merge = config.MergeUnion
	s := newTestStore(t, local, remote, opts)

	assert.Equal(t, SourceUnion, s.LoadAtStartup(ctx))
	s.Wait()

	assert.Equal(t, []sample.TrainingSample{mkSample("a", 1, 1), mkSample("c", 3, 3), mkSample("b", 2, 2)}, s.Samples())
	assert.Equal(t, []sample.TrainingSample{mkSample("b", 2, 2)}, remote.appended)
}

func TestLoadUnionMergeIsStableAcrossStartups(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	remote := &fakeRemote{data: []sample.TrainingSample{mkSample("", 1, 1), mkSample("", 2, 2), mkSample("", 2, 2)}}
	opts := testOptions()
	opts.Merge = config.MergeUnion

	for i := range 3 {
		s := newTestStore(t, local, remote, opts)
		assert.Equal(t, SourceUnion, s.LoadAtStartup(ctx), "startup %d", i+1)
		s.Wait()
		assert.Equal(t, 3, s.Len(), "startup %d", i+1)
	}
	assert.Empty(t, remote.appended)
	assert.Len(t, remote.data, 3)

	// A local sample recorded offline with the same values as a remote one
	// is still pushed once.
	offline := newTestStore(t, local, nil, opts)
	offline.LoadAtStartup(ctx)
	require.NoError(t, offline.Add(ctx, mkSample("x", 1, 1)))

	s := newTestStore(t, local, remote, opts)
	s.LoadAtStartup(ctx)
	s.Wait()
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, []sample.TrainingSample{mkSample("x", 1, 1)}, remote.appended)

	s = newTestStore(t, local, remote, opts)
	s.LoadAtStartup(ctx)
	s.Wait()
	assert.Equal(t, 4, s.Len())
	assert.Len(t, remote.appended, 1)
}

func TestLoadCorruptLocalIsDiscarded(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"Not JSON", "{{{"},
		{"Wrong dimensions", `{"version":1,"count":1,"data":[{"xs":{"loudness":1},"ys":{"y1":0,"y2":0,"y3":0,"y4":0,"shape":0}}],"timestamp":1}`},
		{"Out of range", `{"version":1,"count":1,"data":[{"xs":{"loudness":1,"pitch":1,"brightness":1,"roughness":1},"ys":{"y1":0,"y2":0,"y3":0,"y4":0,"shape":9}}],"timestamp":1}`},
		{"Future version", `{"version":99,"count":0,"data":[],"timestamp":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			local := kv.NewMemory()
			key := testOptions().Key
			require.NoError(t, local.Set(ctx, key, []byte(tt.payload)))

			s := newTestStore(t, local, nil, testOptions())
			assert.Equal(t, SourceEmpty, s.LoadAtStartup(ctx))
			assert.Equal(t, 0, s.Len())

			_, err := local.Get(ctx, key)
			assert.ErrorIs(t, err, kv.ErrNotFound)
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory()
	remote := &fakeRemote{}
	s := newTestStore(t, local, remote, testOptions())
	require.NoError(t, s.Add(ctx, mkSample("", 1, 2)))

	require.NoError(t, s.Clear(ctx))
	s.Wait()

	assert.Equal(t, 0, s.Len())
	_, err := local.Get(ctx, testOptions().Key)
	assert.ErrorIs(t, err, kv.ErrNotFound)
	assert.Equal(t, 1, remote.cleared)
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory(), nil, testOptions())
	require.NoError(t, s.Add(ctx, mkSample("", 1, 2)))

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "loudness,pitch,brightness,roughness,y1,y2,y3,y4,shape", lines[0])
	assert.Equal(t, "1,0.5,0.6,0.2,0.2,0.3,0.4,0.5,2", lines[1])
	assert.True(t, strings.HasSuffix(lines[1], ",0.2,0.3,0.4,0.5,2"))
}

func TestHTTPRemote(t *testing.T) {
	var (
		mu     sync.Mutex
		posted []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"success":true,"data":[
				{"xs":{"loudness":1,"pitch":0.5,"brightness":0.6,"roughness":0.2},"ys":{"y1":0.2,"y2":0.3,"y3":0.4,"y4":0.5,"shape":2}},
				{"xs":{"loudness":1},"ys":{"y1":0.2,"y2":0.3,"y3":0.4,"y4":0.5,"shape":2}}
			]}`))
		case http.MethodPost:
			var buf bytes.Buffer
			buf.ReadFrom(r.Body)
			mu.Lock()
			posted = append(posted, buf.String())
			mu.Unlock()
			if strings.Contains(buf.String(), `"shape":4`) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"success":false,"error":"nope"}`))
				return
			}
			w.Write([]byte(`{"success":true,"count":1}`))
		case http.MethodDelete:
			w.Write([]byte(`{"success":true,"message":"All data cleared"}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	r := NewHTTPRemote(srv.URL+"/", nil)

	got, err := r.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []sample.TrainingSample{mkSample("", 1, 2)}, got)

	require.NoError(t, r.Append(ctx, mkSample("x", 1, 2)))
	assert.Error(t, r.Append(ctx, mkSample("y", 1, 4)))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, posted, 2)
	assert.Contains(t, posted[0], `"id":"x"`)

	assert.NoError(t, r.Clear(ctx))
}
