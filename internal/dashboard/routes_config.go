package dashboard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"
)

// ConfigResponse is the /api/config response body: the manifest's raw
// TOML text plus a content hash the client echoes back on PUT to
// prove it edited the version it last read.
type ConfigResponse struct {
	Content string `json:"content"`
	Hash    string `json:"hash"`
}

type configUpdateRequest struct {
	Content string `json:"content"`
	Hash    string `json:"hash"`
}

type configErrorResponse struct {
	Error string `json:"error"`
}

func computeConfigHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.ConfigPath == "" {
		writeJSON(w, http.StatusNotFound, configErrorResponse{Error: "config path not available"})
		return
	}

	content, err := os.ReadFile(s.deps.ConfigPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, configErrorResponse{Error: "failed to read config: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ConfigResponse{Content: string(content), Hash: computeConfigHash(string(content))})
}

// handlePutConfig applies scenario 7's optimistic-concurrency rule:
// the request must carry the hash of the content it read; a mismatch
// against what's currently on disk means someone else (another
// dashboard tab, an editor, `devrig config diff`) changed the
// manifest first, and the client must reload before retrying.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.ConfigPath == "" {
		writeJSON(w, http.StatusNotFound, configErrorResponse{Error: "config path not available"})
		return
	}

	var req configUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, configErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	var probe map[string]any
	if _, err := toml.Decode(req.Content, &probe); err != nil {
		writeJSON(w, http.StatusBadRequest, configErrorResponse{Error: "invalid TOML: " + err.Error()})
		return
	}

	current, err := os.ReadFile(s.deps.ConfigPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, configErrorResponse{Error: "failed to read current config: " + err.Error()})
		return
	}
	if req.Hash != computeConfigHash(string(current)) {
		writeJSON(w, http.StatusConflict, configErrorResponse{Error: "config has been modified externally; please reload"})
		return
	}

	if err := os.WriteFile(s.deps.ConfigPath, []byte(req.Content), 0o644); err != nil {
		writeJSON(w, http.StatusInternalServerError, configErrorResponse{Error: "failed to write config: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ConfigResponse{Content: req.Content, Hash: computeConfigHash(req.Content)})
}
