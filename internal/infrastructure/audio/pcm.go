// Package audio converts between float32 samples and 16-bit little-endian
// PCM, the wire format of the live voice session.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Sample rates of the live voice session.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000

	bytesPerSample = 2
)

// InputMIMEType is the MIME type of microphone audio sent to the provider.
var InputMIMEType = MIMEType(InputSampleRate)

// MIMEType returns "audio/pcm;rate=<rate>".
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// FloatToPCM16 encodes samples in [-1, 1] as little-endian int16. Values
// outside the range are clamped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat decodes little-endian int16 PCM into samples in [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Duration returns the play time of n bytes of mono PCM16 at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n/bytesPerSample) * time.Second / time.Duration(rate)
}

// Float32LE decodes raw little-endian float32 samples, the layout of a
// browser Float32Array buffer. A trailing partial sample is ignored.
func Float32LE(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// EncodeFloat32LE is the inverse of Float32LE.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
