package bitmap

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/hal"
)

func TestCASSetAndClear(t *testing.T) {
	a := New(256, &hal.SpinLock{})

	ok, err := a.CASSet(10)
	if err != nil || !ok {
		t.Fatalf("CASSet(10) = %v, %v", ok, err)
	}
	ok, err = a.CASSet(10)
	if err != nil || ok {
		t.Fatalf("second CASSet(10) should report already-set, got %v, %v", ok, err)
	}

	set, err := a.Test(10)
	if err != nil || !set {
		t.Fatalf("Test(10) = %v, %v, want true", set, err)
	}

	if err := a.Clear(10); err != nil {
		t.Fatal(err)
	}
	set, err = a.Test(10)
	if err != nil || set {
		t.Fatalf("Test(10) after clear = %v, %v, want false", set, err)
	}

	// double free is a no-op
	if err := a.Clear(10); err != nil {
		t.Fatal(err)
	}
}

func TestECCSurvivesMutation(t *testing.T) {
	a := New(128, &hal.SpinLock{})
	for _, i := range []uint64{0, 1, 63, 64, 65, 100} {
		if _, err := a.CASSet(i); err != nil {
			t.Fatal(err)
		}
	}
	for _, w := range a.words {
		if w.ECC != NewWord(w.Data).ECC {
			t.Fatalf("ECC mismatch after mutation: word data %#x ecc %#x", w.Data, w.ECC)
		}
	}
}

func TestDiskImageRoundTrip(t *testing.T) {
	a := New(200, &hal.SpinLock{})
	for _, i := range []uint64{3, 70, 199} {
		if _, err := a.CASSet(i); err != nil {
			t.Fatal(err)
		}
	}
	img := a.ToDiskImage()
	b, err := FromDiskImage(img, 200, &hal.SpinLock{})
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []uint64{3, 70, 199, 5} {
		want, _ := a.Test(i)
		got, err := b.Test(i)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("bit %d: got %v want %v", i, got, want)
		}
	}
}

func TestL2SummaryMarkedOnSet(t *testing.T) {
	a := New(4096, &hal.SpinLock{})
	if a.L2Touched(10) {
		t.Fatal("span should not be touched yet")
	}
	if _, err := a.CASSet(10); err != nil {
		t.Fatal(err)
	}
	if !a.L2Touched(10) {
		t.Fatal("span should be touched after CASSet")
	}
}
