package deepgram

import (
	"errors"
	"fmt"
	"slices"

	"github.com/koscakluka/ema-tabletop/core/audio"
)

var ErrUnsupportedEncoding = errors.New("encoding not supported by deepgram listen")

// listenEncoding is the encoding and sample_rate pair sent as listen
// query parameters.
type listenEncoding struct {
	name       string
	sampleRate int
}

var (
	listenSampleRates = []int{8000, 16000, 24000, 32000, 48000}

	// listenFormats maps device formats to listen encodings. Companded
	// formats are telephony only.
	listenFormats = map[string]struct {
		name          string
		telephonyOnly bool
	}{
		audio.EncodingLinear16.Name(): {name: "linear16"},
		audio.EncodingALaw.Name():     {name: "alaw", telephonyOnly: true},
		audio.EncodingMulaw.Name():    {name: "mulaw", telephonyOnly: true},
	}
)

func listenEncodingFor(info audio.EncodingInfo) (listenEncoding, error) {
	format, ok := listenFormats[info.Format.Name()]
	if !ok {
		return listenEncoding{}, fmt.Errorf("%w: format %q", ErrUnsupportedEncoding, info.Format.Name())
	}
	if !slices.Contains(listenSampleRates, info.SampleRate) {
		return listenEncoding{}, fmt.Errorf("%w: sample rate %d", ErrUnsupportedEncoding, info.SampleRate)
	}
	if format.telephonyOnly && info.SampleRate != 8000 {
		return listenEncoding{}, fmt.Errorf("%w: %s needs 8000 Hz, got %d", ErrUnsupportedEncoding, format.name, info.SampleRate)
	}
	return listenEncoding{name: format.name, sampleRate: info.SampleRate}, nil
}
