package emulator

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/gateway"
)

// checkPostFields enforces the post rules the gateway applies on writes.
func checkPostFields(fields map[string]any, create bool) (string, string) {
	if body, ok := fields[domain.FieldBody]; ok || create {
		s, isString := body.(string)
		if !isString {
			return "invalid-post", "Post must not be empty."
		}
		if err := domain.ValidateBody(s); err != nil {
			return "invalid-post", domain.Describe(err)
		}
	}
	if !create {
		if _, ok := fields[domain.FieldAuthorID]; ok {
			return "immutable-field", "The author of a post cannot change."
		}
		if _, ok := fields[domain.FieldCreatedAt]; ok {
			return "immutable-field", "The creation time of a post cannot change."
		}
	}
	return "", ""
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	if collection == domain.PostsCollection && s.opts.RequireVerification &&
		!s.consumeVerification(r.Header.Get(gateway.VerificationHeader)) {
		writeError(w, http.StatusForbidden, "verification-required", "Verification failed. Try again.")
		return
	}
	var req gateway.FieldsRequest
	if !readJSON(w, r, &req) {
		return
	}
	if collection == domain.PostsCollection {
		if owner, _ := req.Fields[domain.FieldAuthorID].(string); owner != caller(r).Subject {
			writeError(w, http.StatusForbidden, "permission-denied", "You can only post as yourself.")
			return
		}
		if code, msg := checkPostFields(req.Fields, true); code != "" {
			writeError(w, http.StatusBadRequest, code, msg)
			return
		}
	}
	id, err := s.Store.Add(collection, req.Fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gateway.IDResponse{ID: id})
}

// owned loads the record and checks the caller owns it.
func (s *Server) owned(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	vars := mux.Vars(r)
	rec, ok := s.Store.Get(vars["collection"], vars["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "not-found", "This post no longer exists.")
		return "", "", false
	}
	if owner, _ := rec.Fields[domain.FieldAuthorID].(string); owner != caller(r).Subject {
		writeError(w, http.StatusForbidden, "permission-denied", "You can only change your own posts.")
		return "", "", false
	}
	return vars["collection"], vars["id"], true
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection, id, ok := s.owned(w, r)
	if !ok {
		return
	}
	var req gateway.FieldsRequest
	if !readJSON(w, r, &req) {
		return
	}
	if collection == domain.PostsCollection {
		if code, msg := checkPostFields(req.Fields, false); code != "" {
			writeError(w, http.StatusBadRequest, code, msg)
			return
		}
	}
	if err := s.Store.Update(collection, id, req.Fields); err != nil {
		writeInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection, id, ok := s.owned(w, r)
	if !ok {
		return
	}
	if err := s.Store.Delete(collection, id); err != nil {
		writeInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var spec gateway.QuerySpec
	if !readJSON(w, r, &spec) {
		return
	}
	records := s.Store.Query(spec.Query(mux.Vars(r)["collection"]))
	writeJSON(w, http.StatusOK, gateway.RecordsResponse{Records: records})
}

// handleListen upgrades to a websocket, reads the query and then pushes the
// full window after every change until the client goes away.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("emulator: upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	var spec gateway.QuerySpec
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := ws.ReadJSON(&spec); err != nil {
		glog.Warningf("emulator: listen without query: %v", err)
		return
	}
	ws.SetReadDeadline(time.Time{})

	listener := s.Store.Listen(spec.Query(collection))
	defer listener.Close()
	glog.V(1).Infof("emulator: listener on %s opened by %s", collection, caller(r).Subject)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			glog.V(1).Infof("emulator: listener on %s closed", collection)
			return
		case window, ok := <-listener.C():
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteJSON(gateway.ListenMessage{Records: window}); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// blobOwner extracts the account a blob path belongs to:
// tweets/{account}/{post} or avatars/{account}.
func blobOwner(path string) string {
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 3 && parts[0] == "tweets":
		return parts[1]
	case len(parts) == 2 && parts[0] == "avatars":
		return parts[1]
	}
	return ""
}

func (s *Server) blobPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := mux.Vars(r)["path"]
	owner := blobOwner(path)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "invalid-path", "Unknown storage location.")
		return "", false
	}
	if owner != caller(r).Subject {
		writeError(w, http.StatusForbidden, "permission-denied", "You can only change your own files.")
		return "", false
	}
	return path, true
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	path, ok := s.blobPath(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, domain.MaxPhotoBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", "Upload interrupted.")
		return
	}
	photo := domain.Photo{ContentType: r.Header.Get("Content-Type"), Data: data}
	if err := domain.ValidatePhoto(photo); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-file", domain.Describe(err))
		return
	}
	ref := s.Blobs.Put(path, photo.ContentType, data)
	writeJSON(w, http.StatusOK, gateway.BlobResponse{Ref: ref})
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	path, ok := s.blobPath(w, r)
	if !ok {
		return
	}
	if err := s.Blobs.Delete(path); err != nil {
		writeInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlobURL(w http.ResponseWriter, r *http.Request) {
	token, ok := s.Blobs.Token(r.URL.Query().Get("ref"))
	if !ok {
		writeError(w, http.StatusNotFound, "not-found", "File not found.")
		return
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, gateway.URLResponse{URL: scheme + "://" + r.Host + "/v1/files/" + token})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.Blobs.Open(mux.Vars(r)["token"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}
