package host

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/wavetable"
)

// Wav renders an interleaved stereo float32 buffer (as produced by
// RenderToBuffer) into a complete .wav file's bytes, either as 16-bit PCM
// (pcm16) or IEEE float32.
func Wav(buffer []float32, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(len(buffer), pcm16, buf)
	if err := rawToBuffer(buffer, pcm16, buf); err != nil {
		return nil, fmt.Errorf("host: wav export failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Raw renders buffer's samples without a .wav header, for callers piping
// into their own container format.
func Raw(buffer []float32, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rawToBuffer(buffer, pcm16, buf); err != nil {
		return nil, fmt.Errorf("host: raw export failed: %w", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data []float32, pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(data))
		for i, v := range data {
			int16data[i] = int16(clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		err = binary.Write(buf, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(buf, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not write samples to export buffer: %w", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 audio into
// buf. It assumes stereo sound at SampleRate, so the length in stereo
// frames (L + R) is bufferLength / 2. pcm16 selects 16-bit PCM over
// IEEE float32.
func wavHeader(bufferLength int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	const numChannels = 2
	const sampleRate = SampleRate
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.WriteString("fact")
		binary.Write(buf, binary.LittleEndian, uint32(4))            // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength)) // sample length
	}
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// RenderToBuffer renders nframes worth of blocks from eng (ProcKeys1,
// ProcKeys2, RenderBlock, one block at a time) into an interleaved stereo
// float32 buffer, the layout Wav and Raw expect. eng must be configured
// for 2-channel output (SetBFormat(false), nplay 2) and not otherwise
// shared with a live audio callback while this runs.
func RenderToBuffer(eng *engine.Engine, nframes int) []float32 {
	var left, right [wavetable.Block]float32
	block := [][]float32{left[:], right[:]}
	out := make([]float32, 0, nframes*2)
	for len(out) < nframes*2 {
		eng.ProcKeys1()
		eng.ProcKeys2()
		eng.RenderBlock(block)
		for i := range left {
			out = append(out, left[i], right[i])
		}
	}
	return out[:nframes*2]
}
