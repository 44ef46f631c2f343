package cmn

import (
	"encoding/json"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal panics on error — used for types constructed in-process whose
// encoding cannot fail (control envelopes, lifecycle events, link
// definitions) so call sites don't have to thread an error they know is
// unreachable.
func MustMarshal(v interface{}) []byte {
	b, err := jsonAPI.Marshal(v)
	AssertNoErr(err)
	return b
}

func Marshal(v interface{}) ([]byte, error) { return jsonAPI.Marshal(v) }

func Unmarshal(data []byte, v interface{}) error { return jsonAPI.Unmarshal(data, v) }

// ReadJSON decodes an HTTP request body into v, writing a 400 on failure.
// The host serves no HTTP endpoint, so nothing in the host core calls it.
func ReadJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := jsonAPI.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	return nil
}

// MorphMarshal round-trips src through JSON into dst — used when a control
// command's Value arrives as interface{} (already unmarshaled once into an
// envelope) and must be re-decoded into a concrete command struct.
func MorphMarshal(src, dst interface{}) error {
	b, err := jsonAPI.Marshal(src)
	if err != nil {
		return err
	}
	return jsonAPI.Unmarshal(b, dst)
}

// Decode is a thin wrapper for streaming decode from an arbitrary reader.
// Nothing in the host core calls it; the provider supervisor encodes its
// HostData descriptor with MustMarshal.
func Decode(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
