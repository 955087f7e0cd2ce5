package audio

import (
	"errors"
	"math"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func sine(n, rate int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestEncodeDecodeWAV(t *testing.T) {
	in := sine(1600, 16000, 440, 0.5)
	raw, err := EncodeWAV(in, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if string(raw[:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		t.Fatalf("bad header % x", raw[:12])
	}

	out, rate, err := WAVDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 16000 || len(out) != len(in) {
		t.Fatalf("rate %d len %d", rate, len(out))
	}
	for i := range in {
		if d := math.Abs(float64(in[i] - out[i])); d > 0.001 {
			t.Fatalf("sample %d: %f vs %f", i, in[i], out[i])
		}
	}
}

func TestDecodeDownmixesStereo(t *testing.T) {
	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, 8000, 16, 2, 1)
	// left full scale positive, right silent
	data := []int{16384, 0, 16384, 0, 16384, 0}
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	out, rate, err := WAVDecoder{}.Decode(ws.buf)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 8000 || len(out) != 3 {
		t.Fatalf("rate %d frames %d", rate, len(out))
	}
	if math.Abs(float64(out[0])-0.25) > 0.001 {
		t.Errorf("downmixed sample = %f, want 0.25", out[0])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := (WAVDecoder{}).Decode([]byte("definitely not audio")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestCleanerResamplesTrimsAndNormalizes(t *testing.T) {
	c := NewCleaner()
	rate := 48000
	silence := make([]float32, rate/2)
	speech := sine(rate/2, rate, 220, 0.3)
	in := append(append(append([]float32{}, silence...), speech...), silence...)

	out, outRate, err := c.Clean(in, rate)
	if err != nil {
		t.Fatal(err)
	}
	if outRate != 16000 {
		t.Errorf("rate = %d", outRate)
	}
	// half a second of speech plus padding on both sides
	want := 16000/2 + 2*16000*c.PadMillis/1000
	if len(out) > want+10 || len(out) < 16000/2-10 {
		t.Errorf("len = %d, want about %d", len(out), want)
	}
	var peak float32
	for _, s := range out {
		if a := abs32(s); a > peak {
			peak = a
		}
	}
	if math.Abs(float64(peak-c.TargetPeak)) > 0.001 {
		t.Errorf("peak = %f", peak)
	}
}

func TestCleanerSilence(t *testing.T) {
	c := NewCleaner()
	if _, _, err := c.Clean(make([]float32, 1000), 16000); !errors.Is(err, ErrSilent) {
		t.Errorf("err = %v", err)
	}
	if _, _, err := c.Clean([]float32{0.5}, 0); err == nil {
		t.Error("expected error for zero rate")
	}
}

func TestRemoveDC(t *testing.T) {
	out := removeDC([]float32{1.5, 0.5, 1.5, 0.5})
	for i, want := range []float32{0.5, -0.5, 0.5, -0.5} {
		if out[i] != want {
			t.Errorf("out[%d] = %f", i, out[i])
		}
	}
}
