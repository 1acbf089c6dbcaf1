package train

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/liangxiao/meya/backend/internal/config"
	model "github.com/liangxiao/meya/backend/internal/model/train"
)

const fixtureBody = `{
  "code": 0,
  "message": "ok",
  "data": {
    "query_info": {"from_station": "重庆", "to_station": "厦门", "date": "2025-07-16", "timestamp": "2025-07-15T08:00:00"},
    "trains": [
      {
        "train_number": "G2345",
        "depart_station": "重庆西",
        "arrive_station": "厦门北",
        "depart_time": "08:05",
        "arrive_time": "16:40",
        "is_bookable": true,
        "seats": [
          {"seat_name": "二等座", "seat_price": 680.5, "seat_bookable": true, "seat_inventory": 42}
        ]
      }
    ]
  }
}`

func newTestService(baseURL string) *Service {
	return NewService(config.TrainConfig{BaseURL: baseURL, Timeout: time.Second})
}

func TestSearchParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/train" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("from") != "重庆" || q.Get("to") != "厦门" || q.Get("date") != "2025-07-16" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fixtureBody))
	}))
	defer server.Close()

	svc := newTestService(server.URL)
	result := svc.Search(context.Background(), model.Request{From: "重庆", To: "厦门", Date: "2025-07-16"})

	if result.QueryInfo.FromStation != "重庆" {
		t.Fatalf("unexpected query echo: %+v", result.QueryInfo)
	}
	if len(result.Trains) != 1 {
		t.Fatalf("expected 1 train, got %d", len(result.Trains))
	}
	train := result.Trains[0]
	if train.Number != "G2345" || !train.Bookable {
		t.Fatalf("unexpected train: %+v", train)
	}
	if len(train.Seats) != 1 || train.Seats[0].Price != 680.5 || train.Seats[0].Inventory != 42 {
		t.Fatalf("unexpected seats: %+v", train.Seats)
	}
}

func TestSearchUpstreamErrorDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 1, "message": "station not found"}`))
	}))
	defer server.Close()

	svc := newTestService(server.URL)
	result := svc.Search(context.Background(), model.Request{From: "A", To: "Nowhere", Date: "2025-07-16"})

	if result == nil {
		t.Fatal("Search must never return nil")
	}
	if len(result.Trains) != 0 || result.Trains == nil {
		t.Fatalf("expected empty train list, got %+v", result.Trains)
	}
	if result.QueryInfo.FromStation != "A" || result.QueryInfo.ToStation != "Nowhere" {
		t.Fatalf("empty result must echo the query: %+v", result.QueryInfo)
	}
}

func TestSearchMalformedBodyDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 0, "data": `))
	}))
	defer server.Close()

	svc := newTestService(server.URL)
	result := svc.Search(context.Background(), model.Request{From: "A", To: "B", Date: "2025-07-16"})

	if result == nil || len(result.Trains) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestSearchNetworkFailureDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	svc := newTestService(server.URL)
	result := svc.Search(context.Background(), model.Request{From: "A", To: "B", Date: "2025-07-16"})

	if result == nil || len(result.Trains) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestSearchNullTrainsYieldsEmptySlice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 0, "data": {"query_info": {"from_station": "A", "to_station": "B", "date": "2025-07-16", "timestamp": "t"}, "trains": null}}`))
	}))
	defer server.Close()

	svc := newTestService(server.URL)
	result := svc.Search(context.Background(), model.Request{From: "A", To: "B", Date: "2025-07-16"})

	if result.Trains == nil {
		t.Fatal("trains must be an empty slice, not nil")
	}
	if len(result.Trains) != 0 {
		t.Fatalf("expected no trains, got %d", len(result.Trains))
	}
}

func TestToolExposesLookupByName(t *testing.T) {
	svc := newTestService("http://127.0.0.1:0")

	tl, err := svc.Tool()
	if err != nil {
		t.Fatalf("Tool err: %v", err)
	}

	info, err := tl.Info(context.Background())
	if err != nil {
		t.Fatalf("Info err: %v", err)
	}
	if info.Name != ToolName {
		t.Fatalf("expected tool name %q, got %q", ToolName, info.Name)
	}
}
