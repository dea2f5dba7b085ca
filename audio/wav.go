package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the size of a canonical PCM RIFF/WAVE header.
const wavHeaderSize = 44

// EncodeWAV wraps raw signed-16 mono PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	dataSize := len(pcm)
	out := make([]byte, wavHeaderSize+dataSize)

	byteRate := sampleRate * BytesPerSample

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)                // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)                 // PCM
	binary.LittleEndian.PutUint16(out[22:24], 1)                 // mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], BytesPerSample) // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)             // bits per sample
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[wavHeaderSize:], pcm)

	return out
}

// DecodeWAV extracts the PCM payload and sample rate from a canonical
// mono signed-16 RIFF/WAVE container as produced by EncodeWAV.
func DecodeWAV(wav []byte) (pcm []byte, sampleRate int, err error) {
	if len(wav) < wavHeaderSize {
		return nil, 0, fmt.Errorf("wav too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE container")
	}

	sampleRate = int(binary.LittleEndian.Uint32(wav[24:28]))
	dataSize := int(binary.LittleEndian.Uint32(wav[40:44]))
	if wavHeaderSize+dataSize > len(wav) {
		dataSize = len(wav) - wavHeaderSize
	}
	return wav[wavHeaderSize : wavHeaderSize+dataSize], sampleRate, nil
}

// WAVDurationMS returns the play duration of a mono signed-16 PCM
// payload at the given sample rate.
func WAVDurationMS(pcm []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	numSamples := len(pcm) / BytesPerSample
	return numSamples * 1000 / sampleRate
}
