package history

import (
	"testing"

	"github.com/tannoy-player/tannoy/filesystem"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestHistory(t *testing.T) {
	Convey("Given a finished track", t, func() {
		track := PlayedTrack{
			SourceURL: "https://youtube.com/watch?v=abc123",
			Title:     "Some Song",
			Duration:  214,
			Source:    "youtube",
		}

		Convey("When saving it", func() {
			err := Save(&track)

			Convey("Then it should be retrievable", func() {
				So(err, ShouldBeNil)

				saved, err := Get()
				So(err, ShouldBeNil)
				So(saved[track.SourceURL], ShouldNotBeNil)
				So(saved[track.SourceURL].Title, ShouldEqual, "Some Song")
				So(saved[track.SourceURL].PlayCount, ShouldEqual, 1)
				So(saved[track.SourceURL].LastPlayedAt.IsZero(), ShouldBeFalse)
			})

			Convey("Then replaying it should bump the play count", func() {
				So(Save(&track), ShouldBeNil)

				saved, err := Get()
				So(err, ShouldBeNil)
				So(saved[track.SourceURL].PlayCount, ShouldBeGreaterThanOrEqualTo, 2)
			})

			Convey("Then removing it should delete the record", func() {
				So(Remove(track.SourceURL), ShouldBeNil)

				saved, err := Get()
				So(err, ShouldBeNil)
				So(saved[track.SourceURL], ShouldBeNil)
			})
		})
	})
}
