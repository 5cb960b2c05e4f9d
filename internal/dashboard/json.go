package dashboard

import (
	"encoding/json"
	"io"
)

func encodeJSON(w io.Writer, body any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(body)
}
