package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// uploadRequest is the body of /upload and /upload_old.
type uploadRequest struct {
	Content string `json:"content"`
}

// searchRequest is the body of /search.
type searchRequest struct {
	Query string `json:"query"`
	TopK  uint   `json:"top_k"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "vexd vector search service")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.queue.Enqueue(req.Content)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "accepted: queued for indexing",
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	queryVec, err := s.embedder.EmbedOne(r.Context(), req.Query)
	if err != nil {
		s.log.Error("embed query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "embedding failed")
		return
	}

	results, err := s.index.Search(queryVec, int(req.TopK))
	if err != nil {
		s.log.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, "no results")
		return
	}

	// result_1 .. result_k, best first.
	out := make(map[string]string, len(results))
	for i, res := range results {
		out[fmt.Sprintf("result_%d", i+1)] = res.Content
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUploadOld is the legacy synchronous path: embed inline, insert
// inline, return the id. Kept for parity with older clients; /upload is the
// preferred endpoint.
func (s *Server) handleUploadOld(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	vec, err := s.embedder.EmbedOne(r.Context(), req.Content)
	if err != nil {
		s.log.Error("embed upload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "embedding failed")
		return
	}

	id, err := s.index.Insert(req.Content, vec)
	if err != nil {
		s.log.Error("insert failed", "err", err)
		writeError(w, http.StatusInternalServerError, "insert failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"id": id})
}

// statsResponse is the /stats body.
type statsResponse struct {
	Documents    int    `json:"documents"`
	NextID       uint32 `json:"next_id"`
	Dim          int    `json:"dim"`
	LayerNodes   []int  `json:"layer_nodes"`
	QueueDepth   int    `json:"queue_depth"`
	Batches      int    `json:"batches"`
	Inserted     int    `json:"inserted"`
	DroppedBatch int    `json:"dropped_batches"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.index.Stats()
	resp := statsResponse{
		Documents:  st.Documents,
		NextID:     st.NextID,
		Dim:        st.Dim,
		LayerNodes: st.LayerNodes[:],
		QueueDepth: s.queue.Len(),
	}
	if s.batcher != nil {
		resp.Batches, resp.Inserted, resp.DroppedBatch = s.batcher.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody parses the JSON request body into dst, answering 400 on any
// decode failure. Returns false if the response has been written.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
