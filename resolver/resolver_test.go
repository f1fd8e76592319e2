package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/tannoy-player/tannoy/config"
	"github.com/tannoy-player/tannoy/filesystem"
	"github.com/tannoy-player/tannoy/key"
)

func init() {
	filesystem.SetMemMapFs()
	_ = config.Setup()
}

func newTestClient(srvURL string) *Client {
	viper.Set(key.ResolverURL, srvURL)
	viper.Set(key.ResolverTimeoutSec, 2)
	return New()
}

func TestResolve(t *testing.T) {
	Convey("Resolve", t, func() {
		Convey("Returns track metadata on success", func(c C) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				c.So(body["url"], ShouldEqual, "https://youtube.com/watch?v=test")

				_ = json.NewEncoder(w).Encode(Track{
					Title:    "Test Track",
					AudioURL: "https://cdn.example/audio",
					Duration: 212,
				})
			}))
			defer srv.Close()

			track, err := newTestClient(srv.URL).Resolve(context.Background(), "https://youtube.com/watch?v=test")
			So(err, ShouldBeNil)
			So(track.Title, ShouldEqual, "Test Track")
			So(track.AudioURL, ShouldEqual, "https://cdn.example/audio")
			// Source falls back to the submitted URL when the service omits it.
			So(track.Source, ShouldEqual, "https://youtube.com/watch?v=test")
		})

		Convey("Rejects an empty url locally", func() {
			_, err := newTestClient("http://unused.invalid").Resolve(context.Background(), "  ")
			var resErr *Error
			So(errors.As(err, &resErr), ShouldBeTrue)
			So(resErr.Reason, ShouldEqual, ReasonInvalidResponse)
		})

		Convey("Maps upstream 5xx to upstream-error with the auth hint set", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Failed to process URL."})
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Resolve(context.Background(), "https://youtube.com/watch?v=x")
			var resErr *Error
			So(errors.As(err, &resErr), ShouldBeTrue)
			So(resErr.Reason, ShouldEqual, ReasonUpstream)
			So(resErr.AuthSuspected, ShouldBeTrue)
		})

		Convey("Maps client-input 4xx to upstream-error without the auth hint", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Resolve(context.Background(), "https://youtube.com/watch?v=x")
			var resErr *Error
			So(errors.As(err, &resErr), ShouldBeTrue)
			So(resErr.Reason, ShouldEqual, ReasonUpstream)
			So(resErr.AuthSuspected, ShouldBeFalse)
		})

		Convey("Maps a missing audio url to invalid-response", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]string{"title": "no stream"})
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Resolve(context.Background(), "https://youtube.com/watch?v=x")
			var resErr *Error
			So(errors.As(err, &resErr), ShouldBeTrue)
			So(resErr.Reason, ShouldEqual, ReasonInvalidResponse)
		})

		Convey("Maps a slow upstream to timeout", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(3 * time.Second)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			c.timeout = 50 * time.Millisecond
			_, err := c.Resolve(context.Background(), "https://youtube.com/watch?v=x")
			var resErr *Error
			So(errors.As(err, &resErr), ShouldBeTrue)
			So(resErr.Reason, ShouldEqual, ReasonTimeout)
			So(resErr.AuthSuspected, ShouldBeTrue)
		})
	})
}

func TestSearch(t *testing.T) {
	Convey("Search", t, func() {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []Candidate{
					{Title: "first", URL: "https://youtube.com/watch?v=1"},
					{Title: "second", URL: "https://youtube.com/watch?v=2"},
					{Title: "third", URL: "https://youtube.com/watch?v=3"},
				},
			})
		}))
		defer srv.Close()

		c := newTestClient(srv.URL)

		Convey("Returns candidates capped at the limit", func() {
			results, err := c.Search(context.Background(), "some song", 2)
			So(err, ShouldBeNil)
			So(len(results), ShouldEqual, 2)
			So(results[0].Title, ShouldEqual, "first")
		})

		Convey("Identical queries within the validity window hit the remote once", func() {
			before := calls.Load()
			_, err := c.Search(context.Background(), "cached song", 5)
			So(err, ShouldBeNil)
			_, err = c.Search(context.Background(), "  CACHED   song ", 5)
			So(err, ShouldBeNil)
			So(calls.Load()-before, ShouldEqual, 1)
		})

		Convey("An expired entry triggers exactly one fresh call", func() {
			c.cache.ttl = time.Nanosecond
			before := calls.Load()
			_, _ = c.Search(context.Background(), "expiring song", 5)
			time.Sleep(time.Millisecond)
			_, _ = c.Search(context.Background(), "expiring song", 5)
			So(calls.Load()-before, ShouldEqual, 2)
		})
	})
}

func TestSearchCacheEviction(t *testing.T) {
	Convey("Search cache", t, func() {
		c := newSearchCache(time.Minute, 2)

		c.put("one", []Candidate{{Title: "one"}})
		c.put("two", []Candidate{{Title: "two"}})
		c.put("three", []Candidate{{Title: "three"}})

		Convey("Oldest entry is evicted at capacity", func() {
			_, ok := c.get("one")
			So(ok, ShouldBeFalse)
			_, ok = c.get("two")
			So(ok, ShouldBeTrue)
			_, ok = c.get("three")
			So(ok, ShouldBeTrue)
		})
	})
}
