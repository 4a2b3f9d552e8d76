package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchRecoversResultOrder(t *testing.T) {
	// JSON object key order is not guaranteed; the client must sort by the
	// result_N suffix.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result_3":"third","result_1":"first","result_2":"second"}`))
	}))
	defer ts.Close()

	c := New(ts.URL)
	got, err := c.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSearchNotFoundIsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no results"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	got, err := New(ts.URL).Search(context.Background(), "nothing", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty results on 404, got %v", got)
	}
}

func TestUploadSurfacesServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"embedding failed"}`, http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := New(ts.URL).Upload(context.Background(), "doc")
	if err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestUploadSyncReturnsID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload_old" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7}`))
	}))
	defer ts.Close()

	id, err := New(ts.URL).UploadSync(context.Background(), "doc")
	if err != nil {
		t.Fatal(err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
}
