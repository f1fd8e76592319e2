package query

import (
	"fmt"
	"sync"
	"testing"

	"github.com/tannoy-player/tannoy/filesystem"
	"github.com/tannoy-player/tannoy/key"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func init() {
	filesystem.SetMemMapFs()
	viper.Set(key.SearchShowQuerySuggestions, true)
}

func TestQuery(t *testing.T) {
	Convey("Given remembered queries", t, func() {
		So(Remember("lofi beats", 1), ShouldBeNil)
		So(Remember("late night jazz", 10), ShouldBeNil)

		Convey("SuggestMany ranks by popularity", func() {
			s := SuggestMany("late")
			So(len(s), ShouldBeGreaterThanOrEqualTo, 1)
			So(s[0], ShouldEqual, "late night jazz")
		})

		Convey("Suggest returns the top match", func() {
			So(Suggest("lofi").MustGet(), ShouldEqual, "lofi beats")
		})

		Convey("New queries show up after earlier lookups", func() {
			_ = SuggestMany("morning")
			So(Remember("morning radio", 5), ShouldBeNil)

			s := SuggestMany("morning")
			So(s, ShouldContain, "morning radio")
		})

		Convey("Repeated remembers accumulate rank", func() {
			So(Remember("lofi beats", 20), ShouldBeNil)

			s := SuggestMany("lo")
			So(len(s), ShouldBeGreaterThanOrEqualTo, 1)
			So(s[0], ShouldEqual, "lofi beats")
		})

		Convey("Suggestions can be disabled", func() {
			viper.Set(key.SearchShowQuerySuggestions, false)
			defer viper.Set(key.SearchShowQuerySuggestions, true)

			So(SuggestMany("lofi"), ShouldBeEmpty)
		})

		Convey("Input is sanitized", func() {
			So(sanitize("  Lofi Beats  "), ShouldEqual, "lofi beats")
		})
	})
}

func TestQueryConcurrency(t *testing.T) {
	for i := 0; i < 20; i++ {
		if err := Remember(fmt.Sprintf("station %d", i), i); err != nil {
			t.Fatalf("remember: %s", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = SuggestMany("station")
				if j%10 == 0 {
					_ = Remember(fmt.Sprintf("station %d", n), 1)
				}
			}
		}(i)
	}
	wg.Wait()

	if s := SuggestMany("station"); len(s) == 0 {
		t.Fatal("expected suggestions after concurrent access")
	}
}
