package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
)

type boxSummary struct {
	Name     string         `json:"name"`
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config,omitempty"`
}

type createBucketRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBoxes(w http.ResponseWriter, r *http.Request) {
	if s.boxes == nil {
		writeJSON(w, http.StatusOK, []boxSummary{})
		return
	}
	boxes, err := s.boxes.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]boxSummary, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, boxSummary{Name: b.Name, Provider: b.Provider, Config: b.Config})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st.TestConnection(r.Context()))
}

func (s *Server) handleContents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := filestore.ListRequest{Prefix: q.Get("prefix"), Token: q.Get("token")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, badRequest("limit must be a non-negative integer"))
			return
		}
		req.PageLimit = n
	}

	st, ok := s.store(w, r)
	if !ok {
		return
	}
	view, err := st.ListContents(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	remotePath := chi.URLParam(r, "*")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errorDetail{
				Kind:    "malformed_request",
				Message: "upload exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
			}})
			return
		}
		s.writeError(w, r, badRequest("reading body: "+err.Error()))
		return
	}

	st, ok := s.store(w, r)
	if !ok {
		return
	}
	res, err := st.UploadFile(r.Context(), data, remotePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	remotePath := chi.URLParam(r, "*")
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	data, err := st.DownloadFile(r.Context(), remotePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", filestore.ContentType(remotePath))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	remotePath := q.Get("path")
	var ttl time.Duration
	if raw := q.Get("ttl"); raw != "" {
		d, err := parseTTL(raw)
		if err != nil {
			s.writeError(w, r, badRequest("ttl must be a duration such as 15m or a number of seconds"))
			return
		}
		ttl = d
	}

	st, ok := s.store(w, r)
	if !ok {
		return
	}
	u, err := st.GetSignedURL(r.Context(), remotePath, ttl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	buckets, err := st.ListBuckets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if buckets == nil {
		buckets = []filestore.BucketInfo{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	var body createBucketRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
		s.writeError(w, r, badRequest("body must be {\"name\": \"...\"}"))
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		s.writeError(w, r, badRequest("name is required"))
		return
	}

	st, ok := s.store(w, r)
	if !ok {
		return
	}
	if err := st.CreateBucket(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, filestore.BucketInfo{Name: name})
}

// store opens the store for the {box} URL parameter, writing the error
// response itself when that fails.
func (s *Server) store(w http.ResponseWriter, r *http.Request) (filestore.Store, bool) {
	st, err := s.open(r.Context(), chi.URLParam(r, "box"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return st, true
}

func parseTTL(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return 0, errors.New("non-positive ttl")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid ttl")
	}
	return d, nil
}

func badRequest(msg string) error {
	return &errs.ProviderError{Kind: errs.KindMalformedRequest, Message: msg}
}
