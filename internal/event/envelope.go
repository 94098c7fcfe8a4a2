package event

import (
	"sync"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"

	"bitmex_orderbook/pkg/quant"
)

// Envelope is a raw feed message stamped at arrival.
// Wire form: {"t": <unix seconds>, "msg": <exchange payload>}.
type Envelope struct {
	Seq uint64          `json:"-"`
	Ts  quant.TimeStamp `json:"t"`
	Msg []byte          `json:"msg"`
}

var envelopePool = sync.Pool{
	New: func() any { return new(Envelope) },
}

// AcquireEnvelope returns a zeroed envelope from the pool.
func AcquireEnvelope() *Envelope {
	return envelopePool.Get().(*Envelope)
}

// ReleaseEnvelope resets env and returns it to the pool. The Msg buffer is kept for reuse.
func ReleaseEnvelope(env *Envelope) {
	if env == nil {
		return
	}
	env.Seq = 0
	env.Ts = 0
	env.Msg = env.Msg[:0]
	envelopePool.Put(env)
}

// warmupEnvelopes is how many pooled envelopes Warmup pre-allocates.
const warmupEnvelopes = 1024

// Warmup pre-fills the envelope pool so the first burst after subscribe
// (the partial image) does not allocate per frame.
func Warmup() {
	envs := make([]*Envelope, warmupEnvelopes)
	for i := range envs {
		envs[i] = &Envelope{Msg: make([]byte, 0, 4096)}
	}
	for _, env := range envs {
		envelopePool.Put(env)
	}
}

// MarshalEasyJSON writes the wire form used by post-mortem dumps.
func (e Envelope) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"t":`)
	w.Float64(e.Ts.Seconds())
	w.RawString(`,"msg":`)
	if len(e.Msg) == 0 {
		w.RawString("null")
	} else {
		w.Raw(e.Msg, nil)
	}
	w.RawByte('}')
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(e)
}
