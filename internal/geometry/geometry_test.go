package geometry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCapturePosition(t *testing.T) {
	sel := Rect{Left: 150, Top: 220, Width: 80, Height: 18}
	page := Rect{Left: 100, Top: 200, Width: 800, Height: 1035}

	got := CapturePosition(sel, page)
	want := Position{X: 50, Y: 20, Width: 80, Height: 18}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CapturePosition mismatch (-want +got):\n%s", diff)
	}
}

func TestCapturePosition_ZeroAreaPassesThrough(t *testing.T) {
	got := CapturePosition(Rect{Left: 10, Top: 10}, Rect{Left: 4, Top: 2})
	want := Position{X: 6, Y: 8}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestNormalizeAndProject(t *testing.T) {
	p := Position{X: 50, Y: 20, Width: 80, Height: 18}
	box, ok := Normalize(p, Size{Width: 800, Height: 1000})
	if !ok {
		t.Fatal("Normalize returned false for a valid size")
	}

	// Same size reproduces the captured pixels.
	if diff := cmp.Diff(Place(p), Project(box, Size{Width: 800, Height: 1000}), approx); diff != "" {
		t.Errorf("projection at capture size differs (-want +got):\n%s", diff)
	}

	// Half width halves every horizontal quantity.
	got := Project(box, Size{Width: 400, Height: 500})
	want := Rect{Left: 25, Top: 10, Width: 40, Height: 9}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("scaled projection mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_InvalidSize(t *testing.T) {
	if _, ok := Normalize(Position{X: 1}, Size{Width: 0, Height: 10}); ok {
		t.Error("expected false for zero width")
	}
}

func TestRectEmpty(t *testing.T) {
	if !(Rect{Width: 0, Height: 5}).Empty() {
		t.Error("zero width should be empty")
	}
	if (Rect{Width: 1, Height: 1}).Empty() {
		t.Error("1x1 should not be empty")
	}
}
