package render

import (
	"bytes"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"paddle-arena/internal/game"
)

func TestWritePNG(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	s := game.NewSession("preview", 2, 11, now, rand.New(rand.NewSource(1)))
	s.AddParticipant(game.NewParticipant("alice", "Alice", game.SideLeft, false, now), now)
	s.AddParticipant(game.NewParticipant("bob", "Bob", game.SideRight, false, now), now)
	s.Participants[0].Score = 7

	var buf bytes.Buffer
	if err := NewCourt().WritePNG(&buf, s); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != DefaultWidth || bounds.Dy() != DefaultHeight {
		t.Fatalf("size = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), DefaultWidth, DefaultHeight)
	}

	// The ball is drawn at the court center
	r, g, b, _ := img.At(DefaultWidth/2, DefaultHeight/2).RGBA()
	if r>>8 < 200 || g>>8 < 200 || b>>8 < 200 {
		t.Errorf("center pixel = (%d,%d,%d), want the white ball", r>>8, g>>8, b>>8)
	}
}

func TestDrawEmptySession(t *testing.T) {
	now := time.Now()
	s := game.NewSession("empty", 2, 11, now, rand.New(rand.NewSource(2)))
	c := &Court{Width: 160, Height: 90}

	dc := c.Draw(s)
	if dc.Width() != 160 || dc.Height() != 90 {
		t.Errorf("context size = %dx%d", dc.Width(), dc.Height())
	}
}

func TestWritePNGConcurrent(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	s := game.NewSession("shared", 2, 11, now, rand.New(rand.NewSource(3)))
	s.AddParticipant(game.NewParticipant("alice", "Alice", game.SideLeft, false, now), now)
	s.AddParticipant(game.NewParticipant("bob", "Bob", game.SideRight, false, now), now)
	s.Participants[1].Score = 10

	court := NewCourt()
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				var buf bytes.Buffer
				if err := court.WritePNG(&buf, s); err != nil {
					errs <- err
					continue
				}
				if _, err := png.Decode(&buf); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
