package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypermedia-lab/labclient/convention"
	"github.com/hypermedia-lab/labclient/labtest"
	"github.com/hypermedia-lab/labclient/resource"
)

const (
	sessionPath  = labtest.APIPath + "/sessions/1"
	registerPath = sessionPath + "/stats/registration"
	unregPath    = sessionPath + "/stats/deregistration"
	readPath     = sessionPath + "/stats/data/cache"
)

func testQuery(t *testing.T) *Query {
	q, err := NewQuery([]Stat{MustStat("Port Statistics:Frames Tx.", AggregationNone)})
	require.NoError(t, err)
	return q
}

// dataReply builds a stats data reply carrying one snapshot per timestamp.
func dataReply(q *Query, timestamps ...int) map[string]interface{} {
	snaps := []interface{}{}
	for _, ts := range timestamps {
		snaps = append(snaps, map[string]interface{}{"timestamp": ts, "values": [][]interface{}{{ts * 2}}})
	}
	return map[string]interface{}{"map": map[string]interface{}{q.ID: snaps}}
}

func startServer(t *testing.T) (*labtest.Server, *convention.Chain) {
	srv := labtest.NewServer()
	t.Cleanup(srv.Close)
	srv.HandleJSON("POST", registerPath, http.StatusOK, nil)
	srv.HandleJSON("POST", unregPath, http.StatusOK, nil)
	session := convention.New(srv.APIURL()).Scope("sessions/1")
	return srv, session
}

func register(t *testing.T, session *convention.Chain, q *Query, opts ...ReaderOption) *Reader {
	r, err := Register(context.Background(), session, q, opts...)
	require.NoError(t, err)
	return r
}

func TestRegisterSendsQuery(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	register(t, session, q)

	reqs := srv.RequestsTo("POST", registerPath)
	require.Len(t, reqs, 1)
	assert.Equal(t, "append=true", reqs[0].Query)
	var sent []map[string]interface{}
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, q.ID, sent[0]["id"])
}

func TestRegisterFailure(t *testing.T) {
	srv, session := startServer(t)
	srv.HandleJSON("POST", registerPath, http.StatusBadRequest, map[string]string{"error": "bad stat"})

	_, err := Register(context.Background(), session, testQuery(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, convention.ErrProtocol))

	_, err = Register(context.Background(), session, nil)
	assert.Error(t, err)
}

func TestReaderDeliversEachSnapshotOnceInOrder(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.Handle("POST", readPath, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var reply interface{}
		switch req.URL.Query().Get("startTimestamp") {
		case "0":
			reply = dataReply(q, 10, 10)
		case "10":
			reply = dataReply(q, 25)
		default:
			reply = dataReply(q)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	r := register(t, session, q, WithInterval(time.Millisecond))

	var got []int64
	for i := 0; i < 3; i++ {
		s, err := r.NextSnapshot(context.Background(), time.Second)
		require.NoError(t, err)
		got = append(got, s.Timestamp)
	}
	assert.Equal(t, []int64{10, 10, 25}, got)

	reqs := srv.RequestsTo("POST", readPath)
	require.Len(t, reqs, 2)
	assert.Equal(t, "startTimestamp=0", reqs[0].Query)
	assert.Equal(t, "startTimestamp=10", reqs[1].Query)

	s, err := r.NextSnapshot(context.Background(), 20*time.Millisecond)
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, ErrStatsTimeout))
	for _, req := range srv.RequestsTo("POST", readPath)[2:] {
		assert.Equal(t, "startTimestamp=25", req.Query)
	}
}

func TestReaderKeepsPollingOnEmptyData(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleSequence("POST", readPath,
		labtest.JSONResponse(http.StatusOK, dataReply(q), nil),
		labtest.JSONResponse(http.StatusOK, map[string]interface{}{}, nil),
		labtest.JSONResponse(http.StatusOK, map[string]interface{}{"map": map[string]interface{}{q.ID: nil}}, nil),
		labtest.JSONResponse(http.StatusOK, dataReply(q, 5), nil),
	)
	r := register(t, session, q, WithInterval(time.Millisecond))

	s, err := r.NextSnapshot(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Timestamp)
	assert.Equal(t, 4, srv.Count("POST", readPath))

	v, err := s.Row(0).Value("Frames Tx.")
	require.NoError(t, err)
	assert.Equal(t, json.Number("10"), v)
}

func TestReaderTimeout(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleJSON("POST", readPath, http.StatusOK, dataReply(q))
	r := register(t, session, q, WithInterval(5*time.Millisecond))

	_, err := r.NextSnapshot(context.Background(), 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatsTimeout))
	assert.True(t, errors.Is(err, resource.ErrTimeout))
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, q.ID, te.QueryID)
	assert.Contains(t, err.Error(), "queryId:"+q.ID)
}

func TestReaderDataRequestFailure(t *testing.T) {
	srv, session := startServer(t)
	srv.HandleJSON("POST", readPath, http.StatusInternalServerError, map[string]string{"error": "boom"})
	r := register(t, session, testQuery(t))

	_, err := r.NextSnapshot(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "please check the input parameters")
	assert.True(t, errors.Is(err, convention.ErrProtocol))
}

func TestReaderCloseUnblocksWaiterAndDeregistersOnce(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleJSON("POST", readPath, http.StatusOK, dataReply(q))
	r := register(t, session, q, WithInterval(time.Hour))

	result := make(chan error, 1)
	go func() {
		_, err := r.NextSnapshot(context.Background(), 10*time.Hour)
		result <- err
	}()
	require.Eventually(t, func() bool { return srv.Count("POST", readPath) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Close(context.Background()))
	select {
	case err := <-result:
		assert.Equal(t, ErrClosed, err)
	case <-time.After(time.Second):
		require.Fail(t, "NextSnapshot did not return after Close")
	}

	require.NoError(t, r.Close(context.Background()))
	assert.True(t, r.Closed())
	reqs := srv.RequestsTo("POST", unregPath)
	require.Len(t, reqs, 1)
	assert.Contains(t, string(reqs[0].Body), q.ID)

	_, err := r.NextSnapshot(context.Background(), time.Second)
	assert.Equal(t, ErrClosed, err)
}

func TestReaderContextCancel(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleJSON("POST", readPath, http.StatusOK, dataReply(q))
	r := register(t, session, q, WithInterval(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.NextSnapshot(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAsyncReaderCallback(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleSequence("POST", readPath,
		labtest.JSONResponse(http.StatusOK, dataReply(q, 1, 2), nil),
		labtest.JSONResponse(http.StatusOK, dataReply(q, 3), nil),
		labtest.JSONResponse(http.StatusOK, dataReply(q), nil),
	)
	r := register(t, session, q, WithInterval(time.Millisecond))

	var lock sync.Mutex
	var pairs [][2]int64
	a := NewAsyncReader(r, func(a *AsyncReader, current, previous *Snapshot) {
		prev := int64(-1)
		if previous != nil {
			prev = previous.Timestamp
		}
		lock.Lock()
		pairs = append(pairs, [2]int64{current.Timestamp, prev})
		lock.Unlock()
	}, WithPollLimit(3), WithSnapshotTimeout(time.Second))

	require.NoError(t, a.Wait())
	assert.False(t, a.Alive())
	assert.False(t, a.Closed())
	assert.Nil(t, a.Updates())
	lock.Lock()
	assert.Equal(t, [][2]int64{{1, -1}, {2, 1}, {3, 2}}, pairs)
	lock.Unlock()

	require.NoError(t, a.Close(context.Background()))
	assert.True(t, a.Closed())
	assert.Equal(t, 1, srv.Count("POST", unregPath))
}

func TestAsyncReaderChannel(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleSequence("POST", readPath,
		labtest.JSONResponse(http.StatusOK, dataReply(q, 1, 2, 3, 4), nil),
		labtest.JSONResponse(http.StatusOK, dataReply(q), nil),
	)
	r := register(t, session, q, WithInterval(time.Millisecond))
	a := NewAsyncReader(r, nil, WithUpdateBuffer(1))

	u, err := a.Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Current.Timestamp)
	assert.Nil(t, u.Previous)
	u, err = a.Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.Current.Timestamp)
	assert.Equal(t, int64(1), u.Previous.Timestamp)
	assert.True(t, a.Alive())

	// the reader is now blocked on the full channel; closing must still return promptly
	done := make(chan error, 1)
	go func() { done <- a.Close(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "Close did not return")
	}
	assert.False(t, a.Alive())
	assert.NoError(t, a.Err())

	for range a.Updates() {
	}
	_, err = a.Await(time.Millisecond)
	assert.Equal(t, ErrClosed, err)
}

func TestAsyncReaderRecordsErrors(t *testing.T) {
	t.Run("request failure", func(t *testing.T) {
		srv, session := startServer(t)
		srv.HandleJSON("POST", readPath, http.StatusInternalServerError, nil)
		r := register(t, session, testQuery(t))
		a := NewAsyncReader(r, func(*AsyncReader, *Snapshot, *Snapshot) {})

		err := a.Wait()
		require.Error(t, err)
		assert.True(t, errors.Is(err, convention.ErrProtocol))
		assert.Equal(t, err, a.Err())
	})

	t.Run("callback panic", func(t *testing.T) {
		srv, session := startServer(t)
		q := testQuery(t)
		srv.HandleJSON("POST", readPath, http.StatusOK, dataReply(q, 1))
		r := register(t, session, q)
		a := NewAsyncReader(r, func(*AsyncReader, *Snapshot, *Snapshot) { panic("bad callback") })

		err := a.Wait()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad callback")
	})

	t.Run("timeout", func(t *testing.T) {
		srv, session := startServer(t)
		q := testQuery(t)
		srv.HandleJSON("POST", readPath, http.StatusOK, dataReply(q))
		r := register(t, session, q, WithInterval(time.Millisecond))
		a := NewAsyncReader(r, nil, WithSnapshotTimeout(10*time.Millisecond))

		_, err := a.Await(time.Second)
		assert.True(t, errors.Is(err, ErrStatsTimeout))
	})
}

func TestAsyncReaderStopsWhenCallbackClosesReader(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleJSON("POST", readPath, http.StatusOK, dataReply(q, 1, 2, 3))
	r := register(t, session, q)

	calls := 0
	a := NewAsyncReader(r, func(a *AsyncReader, current, previous *Snapshot) {
		calls++
		if current.Timestamp == 2 {
			_ = a.Reader().Close(context.Background())
		}
	})
	require.NoError(t, a.Wait())
	assert.Equal(t, 2, calls)
	assert.True(t, a.Closed())
}

func TestReaderCloseRetriesFailedDeregistration(t *testing.T) {
	srv, session := startServer(t)
	srv.HandleSequence("POST", unregPath,
		labtest.JSONResponse(http.StatusInternalServerError, map[string]string{"error": "busy"}, nil),
		labtest.JSONResponse(http.StatusOK, nil, nil),
	)
	r := register(t, session, testQuery(t))

	err := r.Close(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, convention.ErrProtocol))
	assert.True(t, r.Closed())

	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 2, srv.Count("POST", unregPath))
}

func TestAsyncReaderAwaitTimeout(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)
	srv.HandleJSON("POST", readPath, http.StatusOK, dataReply(q))
	r := register(t, session, q, WithInterval(time.Millisecond))
	a := NewAsyncReader(r, nil, WithSnapshotTimeout(time.Hour))
	defer func() { _ = a.Close(context.Background()) }()

	_, err := a.Await(20 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatsTimeout))
	assert.True(t, errors.Is(err, resource.ErrTimeout))
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, q.ID, te.QueryID)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.True(t, a.Alive())
}

func TestPushAndPullShareOneReader(t *testing.T) {
	srv, session := startServer(t)
	q := testQuery(t)

	var lock sync.Mutex
	var inFlight, maxInFlight, served int
	var cursors []string
	srv.Handle("POST", readPath, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		lock.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		served++
		ts := served
		cursors = append(cursors, req.URL.Query().Get("startTimestamp"))
		lock.Unlock()

		time.Sleep(2 * time.Millisecond)

		lock.Lock()
		inFlight--
		lock.Unlock()
		labtest.JSONResponse(http.StatusOK, dataReply(q, ts), nil).ServeHTTP(w, req)
	}))
	r := register(t, session, q, WithInterval(time.Millisecond))

	const perConsumer = 20
	a := NewAsyncReader(r, nil, WithPollLimit(perConsumer), WithUpdateBuffer(perConsumer),
		WithSnapshotTimeout(5*time.Second))

	pulled := make(chan []int64, 1)
	go func() {
		var got []int64
		for i := 0; i < perConsumer; i++ {
			s, err := r.NextSnapshot(context.Background(), 5*time.Second)
			if err != nil {
				break
			}
			got = append(got, s.Timestamp)
		}
		pulled <- got
	}()

	var pushed []int64
	for u := range a.Updates() {
		pushed = append(pushed, u.Current.Timestamp)
	}
	require.NoError(t, a.Err())
	var pull []int64
	select {
	case pull = <-pulled:
	case <-time.After(10 * time.Second):
		require.Fail(t, "pull consumer did not finish")
	}
	require.Len(t, pushed, perConsumer)
	require.Len(t, pull, perConsumer)

	assertIncreasing := func(ts []int64) {
		for i := 1; i < len(ts); i++ {
			assert.Less(t, ts[i-1], ts[i])
		}
	}
	assertIncreasing(pushed)
	assertIncreasing(pull)

	seen := map[int64]bool{}
	for _, ts := range append(append([]int64{}, pushed...), pull...) {
		assert.False(t, seen[ts], "timestamp %d delivered twice", ts)
		seen[ts] = true
	}
	for ts := int64(1); ts <= 2*perConsumer; ts++ {
		assert.True(t, seen[ts], "timestamp %d never delivered", ts)
	}

	require.NoError(t, a.Close(context.Background()))

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, 1, maxInFlight)
	require.Len(t, cursors, 2*perConsumer)
	for i, c := range cursors {
		assert.Equal(t, strconv.Itoa(i), c)
	}
}
